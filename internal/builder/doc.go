// SPDX-License-Identifier: MPL-2.0

// Package builder turns a project tree into a signed self-extracting archive
// and, by prepending a runtime image, into a standalone binary.
//
// Every check that can fail on bad configuration runs before the first write
// to the output directory. Builds into the same output directory are
// serialized with an advisory file lock where the platform supports it.
package builder
