// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads runtime images from HTTP, S3 or local mirrors and
// unpacks them into a cache directory. It also resolves runtime versions
// against the configured floor.
package fetch
