// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small blobs at rest with age X25519
// identities. The credential store uses it so that a saved session
// token can only be opened with the identity file kept, mode 0600, in
// the same user's application directory.
package sealed
