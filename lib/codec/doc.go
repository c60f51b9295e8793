// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration for data the client
// writes to disk. Encoding is deterministic, so the same credentials
// always produce the same bytes before sealing.
package codec
