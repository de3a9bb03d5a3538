// Copyright 2025 New Vector Ltd.
// Copyright 2019, 2020 The Matrix.org Foundation C.I.C.
// Copyright 2017, 2018 New Vector Ltd
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"testing"
	"time"

	"github.com/element-hq/typingserver/internal/clock"
	"github.com/element-hq/typingserver/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEDUCache(t *testing.T) {
	tCache := NewTypingCache(clock.NewFake())
	if tCache == nil {
		t.Fatal("NewTypingCache failed")
	}

	t.Run("AddTypingUser", func(t *testing.T) {
		testAddTypingUser(t, tCache)
	})

	t.Run("GetTypingUsers", func(t *testing.T) {
		testGetTypingUsers(t, tCache)
	})

	t.Run("RemoveUser", func(t *testing.T) {
		testRemoveUser(t, tCache)
	})
}

func testAddTypingUser(t *testing.T, tCache *EDUCache) { // nolint: unparam
	present := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		userID string
		roomID string
		expire *time.Time
	}{ // Set four users typing state to room1
		{"user1", "room1", nil},
		{"user2", "room1", nil},
		{"user3", "room1", nil},
		{"user4", "room1", nil},
		//typing state with past expireTime should not take effect or removed.
		{"user1", "room2", &present},
	}

	for _, tt := range tests {
		tCache.AddTypingUser(tt.userID, tt.roomID, tt.expire)
	}
}

func testGetTypingUsers(t *testing.T, tCache *EDUCache) {
	tests := []struct {
		roomID    string
		wantUsers []string
	}{
		{"room1", []string{"user1", "user2", "user3", "user4"}},
		{"room2", []string{}},
	}

	for _, tt := range tests {
		gotUsers := tCache.GetTypingUsers(tt.roomID)
		if !test.UnsortedStringSliceEqual(gotUsers, tt.wantUsers) {
			t.Errorf("TypingCache.GetTypingUsers(%s) = %v, want %v", tt.roomID, gotUsers, tt.wantUsers)
		}
	}
}

func testRemoveUser(t *testing.T, tCache *EDUCache) {
	tests := []struct {
		roomID  string
		userIDs []string
	}{
		{"room3", []string{"user1"}},
		{"room4", []string{"user1", "user2", "user3"}},
	}

	for _, tt := range tests {
		for _, userID := range tt.userIDs {
			tCache.AddTypingUser(userID, tt.roomID, nil)
		}

		length := len(tt.userIDs)
		tCache.RemoveUser(tt.userIDs[length-1], tt.roomID)
		expLeftUsers := tt.userIDs[:length-1]
		if leftUsers := tCache.GetTypingUsers(tt.roomID); !test.UnsortedStringSliceEqual(leftUsers, expLeftUsers) {
			t.Errorf("Response after removal is unexpected. Want = %s, got = %s", leftUsers, expLeftUsers)
		}
	}
}

// TestTypingCache_SetTimeoutCallback_TriggeredOnExpiry tests that the timeout
// callback is triggered when a typing user expires, using real timers.
func TestTypingCache_SetTimeoutCallback_TriggeredOnExpiry(t *testing.T) {
	t.Parallel()
	cache := NewTypingCache(nil)

	var callbackUserID, callbackRoomID string
	var callbackSyncPos int64
	callbackCalled := make(chan struct{})

	// Set the callback BEFORE adding user
	cache.SetTimeoutCallback(func(userID, roomID string, latestSyncPosition int64) {
		callbackUserID = userID
		callbackRoomID = roomID
		callbackSyncPos = latestSyncPosition
		close(callbackCalled)
	})

	// Add user with very short timeout (5ms from now) for a fast test
	shortExpiry := time.Now().Add(5 * time.Millisecond)
	cache.AddTypingUser("@alice:server", "!room:server", &shortExpiry)

	select {
	case <-callbackCalled:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("callback should be triggered after timeout expires")
	}

	// Verify callback received correct parameters
	assert.Equal(t, "@alice:server", callbackUserID)
	assert.Equal(t, "!room:server", callbackRoomID)
	assert.Greater(t, callbackSyncPos, int64(0))

	// Verify user was actually removed after timeout
	users := cache.GetTypingUsers("!room:server")
	assert.Empty(t, users, "User should be removed after timeout")
}

// TestTypingCache_SetTimeoutCallback_NilCallback tests that nil callback is safe
func TestTypingCache_SetTimeoutCallback_NilCallback(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	// Don't set a callback (leave it nil)
	shortExpiry := fake.Now().Add(5 * time.Millisecond)
	cache.AddTypingUser("@alice:server", "!room:server", &shortExpiry)

	// Expiry should not panic even with nil callback
	fake.Advance(20 * time.Millisecond)

	// User should still be removed
	users := cache.GetTypingUsers("!room:server")
	assert.Empty(t, users, "User should be removed even without callback")
}

// TestTypingCache_AddTypingUser_MultipleUsers tests multiple users typing simultaneously
func TestTypingCache_AddTypingUser_MultipleUsers(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	future := fake.Now().Add(10 * time.Second)

	// Add multiple users to same room
	cache.AddTypingUser("@alice:server", "!room:server", &future)
	cache.AddTypingUser("@bob:server", "!room:server", &future)
	cache.AddTypingUser("@charlie:server", "!room:server", &future)

	users := cache.GetTypingUsers("!room:server")
	assert.Len(t, users, 3, "Should have 3 users typing")
	assert.Contains(t, users, "@alice:server")
	assert.Contains(t, users, "@bob:server")
	assert.Contains(t, users, "@charlie:server")
}

// TestTypingCache_AddTypingUser_RenewalDoesNotAdvance tests that renewing an
// already typing user reschedules the expiry but leaves the sync position
// alone: the typing set did not change, so pollers see nothing new.
func TestTypingCache_AddTypingUser_RenewalDoesNotAdvance(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	first := fake.Now().Add(10 * time.Second)
	syncPos1, changed1 := cache.AddTypingUser("@alice:server", "!room:server", &first)
	require.True(t, changed1)

	second := fake.Now().Add(20 * time.Second)
	syncPos2, changed2 := cache.AddTypingUser("@alice:server", "!room:server", &second)
	assert.False(t, changed2, "renewal must not report a change")
	assert.Equal(t, syncPos1, syncPos2, "renewal must not advance the sync position")

	// Should still be only one user
	users := cache.GetTypingUsers("!room:server")
	assert.Len(t, users, 1, "Should have only 1 user after renewal")
	assert.Contains(t, users, "@alice:server")
}

// TestTypingCache_RenewalOutlivesOriginalDeadline tests the central timer
// race: the first deadline passing must not clear a renewed state, and the
// renewed deadline must still take effect.
func TestTypingCache_RenewalOutlivesOriginalDeadline(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	first := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!room:server", &first)

	fake.Advance(5 * time.Second)
	second := fake.Now().Add(10 * time.Second)
	_, changed := cache.AddTypingUser("@alice:server", "!room:server", &second)
	require.False(t, changed)
	posAfterRenewal := cache.GetLatestSyncPosition()

	// Past the first deadline, before the renewed one.
	fake.Advance(6 * time.Second)
	assert.Contains(t, cache.GetTypingUsers("!room:server"), "@alice:server",
		"stale timer must not clear renewed state")
	assert.Equal(t, posAfterRenewal, cache.GetLatestSyncPosition())

	// Past the renewed deadline.
	fake.Advance(5 * time.Second)
	assert.Empty(t, cache.GetTypingUsers("!room:server"))
	assert.Equal(t, posAfterRenewal+1, cache.GetLatestSyncPosition(),
		"expiry advances the position exactly once")
}

// TestTypingCache_AddTypingUser_ExpiredTime tests adding user with past expiry time
func TestTypingCache_AddTypingUser_ExpiredTime(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	// First add a valid user to increment sync position
	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@bob:server", "!room:server", &future)

	// Add user with expiry in the past
	pastTime := fake.Now().Add(-10 * time.Second)
	syncPos, changed := cache.AddTypingUser("@alice:server", "!room:server", &pastTime)

	// Should return current sync position with no change recorded
	assert.Equal(t, int64(1), syncPos, "Should return current sync position")
	assert.False(t, changed)

	// User with past expiry should not be in typing list
	users := cache.GetTypingUsers("!room:server")
	assert.Len(t, users, 1, "Should only have the valid user")
	assert.Contains(t, users, "@bob:server", "Should only contain the valid user")
	assert.NotContains(t, users, "@alice:server", "Should not contain expired user")
}

// TestTypingCache_AddTypingUser_PastExpiryRemovesTypingUser tests that a past
// expiry behaves as an explicit stop for a user who was typing.
func TestTypingCache_AddTypingUser_PastExpiryRemovesTypingUser(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!room:server", &future)

	past := fake.Now().Add(-time.Second)
	syncPos, changed := cache.AddTypingUser("@alice:server", "!room:server", &past)
	assert.True(t, changed, "stopping a typing user advances the position")
	assert.Equal(t, int64(2), syncPos)
	assert.Empty(t, cache.GetTypingUsers("!room:server"))
}

// TestTypingCache_RemoveUser_NonExistentRoom tests removing user from non-existent room
func TestTypingCache_RemoveUser_NonExistentRoom(t *testing.T) {
	t.Parallel()
	cache := NewTypingCache(clock.NewFake())

	// Try to remove user from room that doesn't exist
	syncPos, changed := cache.RemoveUser("@alice:server", "!nonexistent:server")

	// Should return latestSyncPosition (which is 0 for empty cache)
	assert.Equal(t, int64(0), syncPos, "Should return latestSyncPosition without error")
	assert.False(t, changed)

	// Verify no data was created for the non-existent room
	users := cache.GetTypingUsers("!nonexistent:server")
	assert.Empty(t, users, "Room should not exist in cache")
}

// TestTypingCache_RemoveUser_UserNotInRoom tests removing user that's not in room
func TestTypingCache_RemoveUser_UserNotInRoom(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	// Add alice to room
	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!room:server", &future)

	// Try to remove bob (who was never added)
	syncPos, changed := cache.RemoveUser("@bob:server", "!room:server")

	// Should return current latestSyncPosition (which is 1 from alice's addition)
	assert.Equal(t, int64(1), syncPos, "Should return current latestSyncPosition")
	assert.False(t, changed, "Removing an absent user is a no-op")

	// Alice should still be in the room
	users := cache.GetTypingUsers("!room:server")
	assert.Len(t, users, 1, "Alice should still be typing")
	assert.Contains(t, users, "@alice:server", "Alice should still be in room")
	assert.NotContains(t, users, "@bob:server", "Bob should not be in room")
}

// TestTypingCache_RemoveUser_Idempotent tests that a second remove does not
// advance the sync position again.
func TestTypingCache_RemoveUser_Idempotent(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!room:server", &future)

	syncPos1, changed1 := cache.RemoveUser("@alice:server", "!room:server")
	assert.True(t, changed1)
	assert.Equal(t, int64(2), syncPos1)

	syncPos2, changed2 := cache.RemoveUser("@alice:server", "!room:server")
	assert.False(t, changed2)
	assert.Equal(t, int64(2), syncPos2)
}

// TestTypingCache_PositionAttributionPerRoom tests that changes in one room
// never mark another room as updated.
func TestTypingCache_PositionAttributionPerRoom(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!r1:server", &future) // pos 1
	cache.AddTypingUser("@bob:server", "!r2:server", &future)   // pos 2

	_, updated := cache.GetTypingUsersIfUpdatedAfter("!r1:server", 1)
	assert.False(t, updated, "r1 last changed at position 1")

	users, updated := cache.GetTypingUsersIfUpdatedAfter("!r2:server", 1)
	assert.True(t, updated, "r2 changed at position 2")
	assert.Equal(t, []string{"@bob:server"}, users)

	cache.RemoveUser("@alice:server", "!r1:server") // pos 3
	users, updated = cache.GetTypingUsersIfUpdatedAfter("!r1:server", 2)
	assert.True(t, updated)
	assert.Empty(t, users)
	_, updated = cache.GetTypingUsersIfUpdatedAfter("!r2:server", 2)
	assert.False(t, updated)
}

// TestTypingCache_StopCancelsAllTimers tests teardown: after Stop, advancing
// time must not fire any expiry callback.
func TestTypingCache_StopCancelsAllTimers(t *testing.T) {
	t.Parallel()
	fake := clock.NewFake()
	cache := NewTypingCache(fake)

	fired := 0
	cache.SetTimeoutCallback(func(userID, roomID string, latestSyncPosition int64) {
		fired++
	})

	future := fake.Now().Add(10 * time.Second)
	cache.AddTypingUser("@alice:server", "!r1:server", &future)
	cache.AddTypingUser("@bob:server", "!r1:server", &future)
	cache.AddTypingUser("@charlie:server", "!r2:server", &future)

	cache.Stop()
	fake.Advance(time.Minute)

	assert.Zero(t, fired, "no timer may fire after Stop")
	assert.Empty(t, cache.GetTypingUsers("!r1:server"))
	assert.Empty(t, cache.GetTypingUsers("!r2:server"))
}
