// SPDX-License-Identifier: MPL-2.0

// Package server delegates lifecycle control of the host application server
// to configured shell scripts, run by an embedded POSIX shell interpreter,
// and inspects the server process recorded in a pid file.
package server
