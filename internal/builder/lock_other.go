// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package builder

// lockFileName matches the Linux build so archive collection skips it everywhere.
const lockFileName = ".sfxpack.lock"

// buildLock is a no-op outside Linux; concurrent builds are not serialized.
type buildLock struct{}

func acquireBuildLock(string) (*buildLock, error) {
	return &buildLock{}, nil
}

// Release is a no-op.
func (l *buildLock) Release() {}
