// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"sync"
	"time"

	"github.com/element-hq/typingserver/internal/clock"
)

// DefaultTypingTimeout is the expiry used when a caller passes a nil expiry
// time to AddTypingUser.
const DefaultTypingTimeout = 10 * time.Second

// TimeoutCallbackFn is called when a typing user's state expires.
type TimeoutCallbackFn func(userID, roomID string, latestSyncPosition int64)

// EDUCache tracks which users are typing in each room, the stream position at
// which each room last changed, and one expiry timer per typing user. The
// latest sync position advances by exactly one for every change to a room's
// typing set, across all rooms, so pollers can ask "what changed since".
type EDUCache struct {
	sync.RWMutex
	latestSyncPosition int64
	data               map[string]*roomData
	timeoutCallback    TimeoutCallbackFn
	clock              clock.Clock
}

type roomData struct {
	syncPosition int64
	// userSet maps each typing user to the timer that will expire them.
	// A user is typing iff they have an entry here; the two never diverge.
	userSet map[string]clock.Timer
}

// NewTypingCache returns a new EDUCache initialised for use. A nil clock
// selects the system clock.
func NewTypingCache(c clock.Clock) *EDUCache {
	if c == nil {
		c = clock.System()
	}
	return &EDUCache{data: make(map[string]*roomData), clock: c}
}

// SetTimeoutCallback sets a callback function that is called right after
// a user is removed from the typing user list due to timeout.
func (t *EDUCache) SetTimeoutCallback(fn TimeoutCallbackFn) {
	t.Lock()
	defer t.Unlock()
	t.timeoutCallback = fn
}

// GetLatestSyncPosition returns the stream position of the most recent
// change to any room's typing set.
func (t *EDUCache) GetLatestSyncPosition() int64 {
	t.RLock()
	defer t.RUnlock()
	return t.latestSyncPosition
}

// GetTypingUsers returns the list of users typing in roomID. The order of
// the returned list is unspecified.
func (t *EDUCache) GetTypingUsers(roomID string) []string {
	users, _ := t.GetTypingUsersIfUpdatedAfter(roomID, -1)
	if users == nil {
		users = []string{}
	}
	return users
}

// GetTypingUsersIfUpdatedAfter returns the users typing in roomID along with
// updated=true if the room's typing set changed after the given position.
// Otherwise, returns nil with updated=false.
func (t *EDUCache) GetTypingUsersIfUpdatedAfter(
	roomID string, position int64,
) (users []string, updated bool) {
	t.RLock()
	defer t.RUnlock()

	room, ok := t.data[roomID]
	if ok && room.syncPosition > position {
		updated = true
		users = make([]string, 0, len(room.userSet))
		for userID := range room.userSet {
			users = append(users, userID)
		}
	}
	return
}

// AddTypingUser marks userID as typing in roomID until expire, cancelling and
// replacing any expiry already scheduled for the pair. The sync position
// advances only if the user was not already typing; renewing an existing
// user's deadline is invisible to pollers. An expire at or before the current
// time degenerates to RemoveUser. Returns the latest sync position and
// whether it advanced.
func (t *EDUCache) AddTypingUser(
	userID, roomID string, expire *time.Time,
) (int64, bool) {
	expireTime := t.clock.Now().Add(DefaultTypingTimeout)
	if expire != nil {
		expireTime = *expire
	}
	until := expireTime.Sub(t.clock.Now())
	if until <= 0 {
		return t.RemoveUser(userID, roomID)
	}
	return t.addUser(userID, roomID, until)
}

func (t *EDUCache) addUser(userID, roomID string, expireIn time.Duration) (int64, bool) {
	t.Lock()
	defer t.Unlock()

	room := t.data[roomID]
	if room == nil {
		room = &roomData{userSet: make(map[string]clock.Timer)}
		t.data[roomID] = room
	}

	changed := false
	if timer, ok := room.userSet[userID]; ok {
		// Renewal. Cancel the outstanding timer so it can never fire
		// against the new deadline, but don't bump the position: the
		// set of typing users has not changed.
		timer.Stop()
	} else {
		t.latestSyncPosition++
		room.syncPosition = t.latestSyncPosition
		changed = true
	}

	// The callback identifies itself by handle so that, if it loses the
	// race against a later renewal or removal, it finds a different timer
	// in the map and does nothing. The handle variable is written before
	// the cache lock is released, which is what the callback synchronises
	// on, so the closure always sees the final value.
	var handle clock.Timer
	handle = t.clock.AfterFunc(expireIn, func() {
		t.expireUser(userID, roomID, handle)
	})
	room.userSet[userID] = handle

	return t.latestSyncPosition, changed
}

// expireUser runs when the expiry timer for (userID, roomID) fires. It only
// takes effect if the fired timer is still the live one for the pair.
func (t *EDUCache) expireUser(userID, roomID string, handle clock.Timer) {
	t.Lock()
	room, ok := t.data[roomID]
	if !ok || room.userSet[userID] != handle {
		// A SetTyping or RemoveUser got there first; this timer is stale.
		t.Unlock()
		return
	}
	delete(room.userSet, userID)
	t.latestSyncPosition++
	room.syncPosition = t.latestSyncPosition
	position := t.latestSyncPosition
	callback := t.timeoutCallback
	t.Unlock()

	if callback != nil {
		callback(userID, roomID, position)
	}
}

// RemoveUser removes userID from roomID's typing set and cancels their expiry
// timer. Removing a user who is not typing is a no-op and does not advance
// the sync position. Returns the latest sync position and whether it
// advanced.
func (t *EDUCache) RemoveUser(userID, roomID string) (int64, bool) {
	t.Lock()
	defer t.Unlock()

	room, ok := t.data[roomID]
	if !ok {
		return t.latestSyncPosition, false
	}
	timer, ok := room.userSet[userID]
	if !ok {
		return t.latestSyncPosition, false
	}

	timer.Stop()
	delete(room.userSet, userID)
	t.latestSyncPosition++
	room.syncPosition = t.latestSyncPosition
	return t.latestSyncPosition, true
}

// Stop cancels every pending expiry timer across all rooms and clears the
// typing sets, without advancing the sync position. Call on shutdown so no
// timer can fire after the cache's owner has gone away.
func (t *EDUCache) Stop() {
	t.Lock()
	defer t.Unlock()
	for _, room := range t.data {
		for userID, timer := range room.userSet {
			timer.Stop()
			delete(room.userSet, userID)
		}
	}
}
