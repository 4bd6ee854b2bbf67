// SPDX-License-Identifier: MPL-2.0

// Package platform provides cross-platform helpers: OS name constants,
// portable artifact file name checks, and host command resolution when the
// tool itself runs inside a Flatpak or Snap sandbox.
package platform
