// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package internal

import (
	"context"
	"sort"
	"time"

	"github.com/Arceliar/phony"
	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/element-hq/typingserver/internal/caching"
	"github.com/element-hq/typingserver/internal/clock"
	"github.com/element-hq/typingserver/setup/config"
	"github.com/element-hq/typingserver/typingapi/api"
	"github.com/element-hq/typingserver/typingapi/queue"
)

// distributionTimeout bounds the membership query performed during fan-out.
const distributionTimeout = 30 * time.Second

// TypingServerInternalAPI processes typing state changes: it clamps the
// requested timeout, applies the change to the typing cache, and triggers
// federation fan-out for changes that advanced the stream position. Local
// delivery happens implicitly through the event source reading the cache.
//
// Fan-out runs on the embedded actor, so membership resolution never blocks
// the caller and notifications leave in the order the changes happened.
type TypingServerInternalAPI struct {
	phony.Inbox
	cfg    *config.TypingAPI
	cache  *caching.EDUCache
	clock  clock.Clock
	rsAPI  api.RoomserverAPI
	queues *queue.OutgoingQueues
}

func NewTypingServerInternalAPI(
	cfg *config.TypingAPI,
	cache *caching.EDUCache,
	clk clock.Clock,
	rsAPI api.RoomserverAPI,
	queues *queue.OutgoingQueues,
) *TypingServerInternalAPI {
	if clk == nil {
		clk = clock.System()
	}
	t := &TypingServerInternalAPI{
		cfg:    cfg,
		cache:  cache,
		clock:  clk,
		rsAPI:  rsAPI,
		queues: queues,
	}
	// Expiry is a state change like any other: remote servers need to
	// hear that the user stopped typing.
	cache.SetTimeoutCallback(func(userID, roomID string, latestSyncPosition int64) {
		log.WithFields(log.Fields{
			"user_id":  userID,
			"room_id":  roomID,
			"sync_pos": latestSyncPosition,
		}).Debug("Typing state expired")
		t.queueFanOut(roomID)
	})
	return t
}

// InputTypingEvent implements api.TypingServerInputAPI. The local mutation
// always commits before fan-out starts; fan-out failures are reported out of
// band and never to the caller.
func (t *TypingServerInternalAPI) InputTypingEvent(ctx context.Context, ite *api.InputTypingEvent) error {
	var changed bool
	var pos int64
	if ite.Typing && ite.TimeoutMS > 0 {
		// Clamp in milliseconds, before the Duration conversion: a huge
		// requested timeout would overflow int64 nanoseconds and wrap
		// negative, turning the request into a stop.
		timeoutMS := ite.TimeoutMS
		if timeoutMS > t.cfg.MaxTimeoutMS {
			timeoutMS = t.cfg.MaxTimeoutMS
		}
		expire := t.clock.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
		pos, changed = t.cache.AddTypingUser(ite.UserID, ite.RoomID, &expire)
	} else {
		// Not typing, or a zero/negative timeout: both mean stop now.
		pos, changed = t.cache.RemoveUser(ite.UserID, ite.RoomID)
	}

	log.WithFields(log.Fields{
		"user_id":  ite.UserID,
		"room_id":  ite.RoomID,
		"typing":   ite.Typing,
		"sync_pos": pos,
		"changed":  changed,
	}).Debug("Processed typing event")

	if changed {
		t.queueFanOut(ite.RoomID)
	}
	return nil
}

// queueFanOut snapshots the room's typing set as of the change just made and
// hands distribution off to the actor. Snapshotting here, before any newer
// mutation can land, keeps the remote servers' view in step with the local
// stream.
func (t *TypingServerInternalAPI) queueFanOut(roomID string) {
	userIDs := t.cache.GetTypingUsers(roomID)
	sort.Strings(userIDs)
	t.Act(nil, func() {
		t.fanOut(roomID, userIDs)
	})
}

// fanOut tells every remote server in the room about its current typing set.
// It runs outside the cache's lock and off the request path, so membership
// resolution or EDU dispatch being slow or broken cannot stall typing
// updates.
func (t *TypingServerInternalAPI) fanOut(roomID string, userIDs []string) {
	// The originating request may already be answered, so don't inherit
	// its context.
	ctx, cancel := context.WithTimeout(context.Background(), distributionTimeout)
	defer cancel()

	_, remoteDomains, err := t.rsAPI.QueryRoomDistribution(ctx, roomID, "")
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Error("Failed to resolve room distribution for typing fan-out")
		sentry.CaptureException(err)
		return
	}
	if len(remoteDomains) == 0 {
		return
	}

	edu, err := api.NewTypingEDU(roomID, userIDs)
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Error("Failed to build typing EDU")
		sentry.CaptureException(err)
		return
	}
	t.queues.SendEDU(edu, remoteDomains)
}
