// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"errors"

	"github.com/sfxpack/sfxpack/internal/fetch"
	"github.com/sfxpack/sfxpack/internal/issue"
)

var (
	// ErrReadOnly is returned when archive creation is disabled.
	ErrReadOnly = errors.New("archive creation is disabled (build.readonly)")

	// ErrInputDirNotFound is returned when the input directory is missing or not a directory.
	ErrInputDirNotFound = errors.New("input directory does not exist")

	// ErrStubNotFound is returned when the entry script is missing from the input directory.
	ErrStubNotFound = errors.New("entry script does not exist")

	// ErrPrivateKeyRequired is returned when openssl signing has no key file.
	ErrPrivateKeyRequired = errors.New("openssl signing requires build.private_key_file")

	// ErrInvalidArtifactName is returned for artifact names that cannot be created portably.
	ErrInvalidArtifactName = errors.New("invalid artifact file name")
)

func failure(kind issue.Kind, op, resource string, err error, suggestions ...string) error {
	return issue.NewErrorContext().
		WithKind(kind).
		WithOperation(op).
		WithResource(resource).
		WithSuggestions(suggestions...).
		Wrap(err).
		BuildError()
}

// fetchFailure classifies download errors: transport problems are network
// errors, everything else is local I/O.
func fetchFailure(resource string, err error) error {
	if fetch.IsTransferError(err) {
		return failure(issue.KindNetwork, "download runtime image", resource, err,
			"Check network access to runtime.image_base_url",
			"Pass a different runtime version, e.g. `sfxpack build:binary 8.2`")
	}
	return failure(issue.KindIO, "prepare runtime image", resource, err,
		"Check that the output directory is writable")
}
