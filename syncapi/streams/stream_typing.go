// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package streams

import (
	"context"
	"sort"

	"github.com/element-hq/typingserver/internal/caching"
	"github.com/element-hq/typingserver/syncapi/types"
	"github.com/element-hq/typingserver/typingapi/api"
)

// TypingStreamProvider projects the typing cache as a client event stream.
// It only ever reads: the cache and its position counter are owned by the
// typing server's input path.
type TypingStreamProvider struct {
	cache *caching.EDUCache
	rsAPI api.RoomserverAPI
}

func NewTypingStreamProvider(cache *caching.EDUCache, rsAPI api.RoomserverAPI) *TypingStreamProvider {
	return &TypingStreamProvider{cache: cache, rsAPI: rsAPI}
}

// CurrentPosition returns the stream position of the most recent typing
// change in any room. It never decreases.
func (p *TypingStreamProvider) CurrentPosition() types.StreamPosition {
	return types.StreamPosition(p.cache.GetLatestSyncPosition())
}

// NewEventsForUser returns one typing event for each of userID's rooms whose
// typing set changed after from, along with the position the caller should
// poll from next. Polling again from the returned position with no
// intervening change yields nothing. Rooms are visited in lexicographic
// order, so truncation by limit is deterministic; limit <= 0 means no limit.
func (p *TypingStreamProvider) NewEventsForUser(
	ctx context.Context, userID string, from types.StreamPosition, limit int,
) ([]api.TypingEvent, types.StreamPosition, error) {
	// Snapshot the position before reading any room. A change landing
	// mid-read may then be delivered twice across two polls, but can
	// never be skipped.
	latest := p.CurrentPosition()

	joined, err := p.rsAPI.QueryJoinedRooms(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(joined)

	var events []api.TypingEvent
	for _, roomID := range joined {
		if limit > 0 && len(events) >= limit {
			break
		}
		users, updated := p.cache.GetTypingUsersIfUpdatedAfter(roomID, int64(from))
		if !updated {
			continue
		}
		sort.Strings(users)
		events = append(events, api.TypingEvent{
			Type:    api.MTypingNotification,
			RoomID:  roomID,
			Content: api.TypingEventContent{UserIDs: users},
		})
	}
	return events, latest, nil
}
