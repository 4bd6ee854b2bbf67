// SPDX-License-Identifier: MPL-2.0

package sfxar

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/md5" //nolint:gosec // md5 is a selectable legacy integrity digest, not a security boundary
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // sha1 is a selectable legacy integrity digest
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Algorithm identifies how an archive is signed. The numeric values are the
// trailer flags.
type Algorithm uint32

const (
	MD5        Algorithm = 0x0001
	SHA1       Algorithm = 0x0002
	SHA256     Algorithm = 0x0003
	SHA512     Algorithm = 0x0004
	PrivateKey Algorithm = 0x0010
)

var (
	// ErrUnsupportedAlgorithm is returned for algorithm names or trailer flags
	// outside the fixed set.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrUnsupportedKey is returned when a private key type cannot sign archives.
	ErrUnsupportedKey = errors.New("unsupported private key type")

	// ErrSignatureMismatch is returned by Verify when the archive content does
	// not match its signature.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

type (
	// Signer produces the trailer signature from the digest of the signed region.
	Signer interface {
		Algorithm() Algorithm
		// Hash returns a fresh hash used to digest the stub and payload.
		Hash() hash.Hash
		// Sign turns the digest into the stored signature.
		Sign(digest []byte) ([]byte, error)
	}

	hashSigner struct {
		alg Algorithm
	}

	keySigner struct {
		key crypto.Signer
	}
)

// ParseAlgorithm maps a configuration value (md5, sha1, sha256, sha512,
// openssl) to an Algorithm. Matching is case-insensitive.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	case "openssl":
		return PrivateKey, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected md5, sha1, sha256, sha512 or openssl)", ErrUnsupportedAlgorithm, name)
	}
}

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	case PrivateKey:
		return "openssl"
	default:
		return fmt.Sprintf("Algorithm(%#x)", uint32(a))
	}
}

// Valid reports whether a is one of the known algorithms.
func (a Algorithm) Valid() bool {
	switch a {
	case MD5, SHA1, SHA256, SHA512, PrivateKey:
		return true
	default:
		return false
	}
}

// HashSigner returns a Signer that stores the plain digest. PrivateKey is
// rejected; use KeySigner for it.
func HashSigner(alg Algorithm) (Signer, error) {
	if !alg.Valid() || alg == PrivateKey {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	return hashSigner{alg: alg}, nil
}

func (s hashSigner) Algorithm() Algorithm { return s.alg }

func (s hashSigner) Hash() hash.Hash { return newDigest(s.alg) }

func (s hashSigner) Sign(digest []byte) ([]byte, error) {
	return bytes.Clone(digest), nil
}

// KeySigner returns a Signer that signs the SHA-256 digest with key.
// RSA keys use PKCS #1 v1.5, ECDSA keys ASN.1 signatures and Ed25519 keys
// sign the digest bytes directly.
func KeySigner(key crypto.Signer) (Signer, error) {
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		return keySigner{key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

func (s keySigner) Algorithm() Algorithm { return PrivateKey }

func (s keySigner) Hash() hash.Hash { return sha256.New() }

func (s keySigner) Sign(digest []byte) ([]byte, error) {
	var opts crypto.SignerOpts = crypto.SHA256
	if _, ok := s.key.(ed25519.PrivateKey); ok {
		opts = crypto.Hash(0)
	}
	sig, err := s.key.Sign(rand.Reader, digest, opts)
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}
	return sig, nil
}

// LoadPrivateKey reads an unencrypted private key from path. PEM encoded
// PKCS #1, PKCS #8 and SEC 1 keys are accepted, as are OpenSSH keys.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes an unencrypted private key. See LoadPrivateKey.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	raw, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is passphrase protected")
		}
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	switch k := raw.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, raw)
	}
}

// verifySignature checks sig against digest for the given algorithm.
func verifySignature(alg Algorithm, pub crypto.PublicKey, digest, sig []byte) error {
	if alg != PrivateKey {
		if !bytes.Equal(digest, sig) {
			return ErrSignatureMismatch
		}
		return nil
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest, sig); err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(k, digest, sig) {
			return ErrSignatureMismatch
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(k, digest, sig) {
			return ErrSignatureMismatch
		}
	case nil:
		return errors.New("public key required to verify a private key signature")
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
	return nil
}

func newDigest(alg Algorithm) hash.Hash {
	switch alg {
	case MD5:
		return md5.New() //nolint:gosec // see import
	case SHA1:
		return sha1.New() //nolint:gosec // see import
	case SHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}
