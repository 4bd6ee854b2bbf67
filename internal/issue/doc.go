// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// Errors carry a Kind (configuration, environment, I/O, network, signature) used
// for exit-code classification, remediation suggestions, and a Markdown
// troubleshooting catalog rendered with glamour.
package issue
