// SPDX-License-Identifier: MPL-2.0

// Command sfxpack packages application trees into archives and standalone binaries.
package main

import cmd "github.com/sfxpack/sfxpack/cmd/sfxpack"

func main() {
	cmd.Execute()
}
