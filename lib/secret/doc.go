// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps access tokens, passwords, and private keys in
// memory allocated outside the Go heap.
//
// [Buffer] memory comes from mmap(MAP_ANONYMOUS), is mlock'd and marked
// MADV_DONTDUMP, and is zeroed on Close. [ReadPassword] and [ReadLine]
// read user input straight into a Buffer.
package secret
