// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is layered: built-in defaults, the user file
// (~/.config/sfxpack/config.cue or the platform equivalent), the project file
// sfxpack.cue, then SFXPACK_* environment variables. Files are validated
// against the embedded CUE schema (config_schema.cue) before they are merged.
package config
