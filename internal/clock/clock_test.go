// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresDueCallbacks(t *testing.T) {
	fake := NewFake()

	var fired []string
	fake.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })
	fake.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })
	fake.AfterFunc(30*time.Second, func() { fired = append(fired, "c") })

	fake.Advance(4 * time.Second)
	assert.Empty(t, fired)

	fake.Advance(7 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired, "due callbacks fire in deadline order")

	fake.Advance(time.Minute)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
}

func TestFakeStopPreventsFiring(t *testing.T) {
	fake := NewFake()

	fired := false
	timer := fake.AfterFunc(time.Second, func() { fired = true })
	require.True(t, timer.Stop())

	fake.Advance(time.Minute)
	assert.False(t, fired)
	assert.False(t, timer.Stop(), "second Stop reports the timer already dead")
}

func TestFakeNonPositiveDurationFiresImmediately(t *testing.T) {
	fake := NewFake()

	fired := false
	timer := fake.AfterFunc(0, func() { fired = true })
	assert.True(t, fired)
	assert.False(t, timer.Stop())
}

func TestFakeNowAdvances(t *testing.T) {
	fake := NewFake()
	start := fake.Now()
	fake.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), fake.Now())
}

func TestFakeRescheduleFromCallback(t *testing.T) {
	fake := NewFake()

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			fake.AfterFunc(time.Second, tick)
		}
	}
	fake.AfterFunc(time.Second, tick)

	for i := 0; i < 5; i++ {
		fake.Advance(time.Second)
	}
	assert.Equal(t, 3, count)
}

func TestSystemClockSchedules(t *testing.T) {
	c := System()

	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
