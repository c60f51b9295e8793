// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-timeout pattern so tests waiting on event channels never
// hang. They are the only place tests use wall-clock timeouts.
//
// [UniqueID] mints distinct identifiers for fake server responses.
package testutil
