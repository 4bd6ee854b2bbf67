// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include project tree fixtures (WriteTree, MustWriteFile,
// MustReadFile), directory creation (MustMkdirAll) and a
// process-wide limit on concurrent container tests (AcquireContainerSlot).
package testutil
