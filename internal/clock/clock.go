// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package clock

import "time"

// Clock abstracts wall-clock time and delayed callbacks so that expiry
// behaviour can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run after d has elapsed. The callback must
	// not assume which goroutine it runs on; if d is already due it may
	// fire before AfterFunc returns.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback has
	// already fired or been stopped.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) Stop() bool { return t.t.Stop() }

// System returns a Clock backed by the runtime's timers.
func System() Clock { return systemClock{} }
