// SPDX-License-Identifier: MPL-2.0

package issue

import "errors"

// Kind classifies an ActionableError. The zero value is KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration covers missing or invalid paths and options.
	KindConfiguration
	// KindEnvironment covers archive support being disabled or unavailable.
	KindEnvironment
	// KindIO covers filesystem create, write and permission failures.
	KindIO
	// KindNetwork covers connect failures, bad responses and truncated transfers.
	KindNetwork
	// KindSignature covers bad algorithm selection and unusable private keys.
	KindSignature
)

// Sentinels matched by errors.Is against any ActionableError of the same kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrEnvironment   = errors.New("environment error")
	ErrIO            = errors.New("i/o error")
	ErrNetwork       = errors.New("network error")
	ErrSignature     = errors.New("signature error")
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindEnvironment:
		return "environment"
	case KindIO:
		return "io"
	case KindNetwork:
		return "network"
	case KindSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// Sentinel returns the package-level sentinel error for k, or nil for KindUnknown.
func (k Kind) Sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindEnvironment:
		return ErrEnvironment
	case KindIO:
		return ErrIO
	case KindNetwork:
		return ErrNetwork
	case KindSignature:
		return ErrSignature
	default:
		return nil
	}
}

// KindOf returns the kind of the outermost classified ActionableError in
// err's chain, falling back to bare sentinels wrapped with %w.
func KindOf(err error) Kind {
	var ae *ActionableError
	for cur := err; errors.As(cur, &ae); cur = ae.Cause {
		if ae.Kind != KindUnknown {
			return ae.Kind
		}
	}
	for _, k := range []Kind{KindConfiguration, KindEnvironment, KindIO, KindNetwork, KindSignature} {
		if errors.Is(err, k.Sentinel()) {
			return k
		}
	}
	return KindUnknown
}
