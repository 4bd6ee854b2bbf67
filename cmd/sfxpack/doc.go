// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for sfxpack.
//
// Every command registers a constructor with the package registry from an
// init function; the root command builds the full set at startup. Command
// handlers load configuration through the App, run the core logic in a
// runX function that takes explicit parameters, and report failures as
// *ExitError values carrying the exit code for the error's kind.
package cmd
