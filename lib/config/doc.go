// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the overlay
// binaries.
//
// Configuration comes from a single file named by the OVERLAY_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). Without either, [Default] applies: the public matrix.org
// homeserver, browser sign-on on port 8080, a one-second sync pace.
// Command-line flags override file values in the commands themselves.
//
// A file only needs the keys it changes; everything else keeps its
// default. Unknown keys are rejected so that typos do not silently
// fall back to defaults.
//
// The sync filter may be written as JSON with comments and trailing
// commas, inline or in a separate file; it is reduced to plain JSON
// when the file is loaded.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${OVERLAY_STATE}, and ${VAR:-default} patterns are
// expanded.
//
// This package depends on no other overlay packages.
package config
