// SPDX-License-Identifier: MPL-2.0

// Package sfxar reads and writes self-extracting archives.
//
// An archive is a bootstrap stub followed by a zip payload and a signature
// trailer:
//
//	stub    | rendered bootstrap script ending in "__HALT_COMPILER(); ?>\r\n"
//	payload | zip stream, entries sorted by name, fixed modification time
//	trailer | signature | u32le(len(signature)) | u32le(flags) | "GBMB"
//
// Zip offsets are absolute within the file, so the whole signed region can be
// opened as a regular zip archive. The signature covers stub and payload.
package sfxar
