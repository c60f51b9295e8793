// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code holds a Clock and receives Real(). Tests construct
// Fake() and step time with Advance, using WaitForTimers to block until
// the goroutine under test has registered its wait:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	client := chat.New(chat.Config{Clock: c, ...})
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
package clock
