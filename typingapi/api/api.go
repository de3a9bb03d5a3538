// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package api

import (
	"context"
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib"
	"github.com/matrix-org/gomatrixserverlib/spec"
)

// MTypingNotification is the event type carried by typing state updates,
// both in the client event stream and on the federation wire.
const MTypingNotification = "typing-notification"

// TypingServerInputAPI is the typing server's mutating entry point.
type TypingServerInputAPI interface {
	// InputTypingEvent records a typing state change. The caller is
	// expected to have applied rate limiting and membership checks first.
	InputTypingEvent(ctx context.Context, ite *InputTypingEvent) error
}

// InputTypingEvent is a typing state change to be processed.
type InputTypingEvent struct {
	// RoomID is the room the typing state relates to.
	RoomID string `json:"room_id"`
	// UserID is the user whose typing state changed.
	UserID string `json:"user_id"`
	// Typing is true when the user starts or renews typing, false when
	// they stop.
	Typing bool `json:"typing"`
	// TimeoutMS is how long the typing state should last, in milliseconds.
	// Values above the configured maximum are clamped; values at or below
	// zero are treated as a stop.
	TimeoutMS int64 `json:"timeout_ms"`
	// OriginServerTS is when the original request arrived.
	OriginServerTS spec.Timestamp `json:"origin_server_ts"`
}

// TypingEvent is the payload delivered to local clients and remote servers.
// UserIDs always carries the room's complete current typing set, not a diff.
type TypingEvent struct {
	Type    string             `json:"type"`
	RoomID  string             `json:"room_id"`
	Content TypingEventContent `json:"content"`
}

// TypingEventContent for TypingEvent.
type TypingEventContent struct {
	UserIDs []string `json:"user_ids"`
}

// RoomserverAPI is the subset of room state queries the typing server needs.
// It is served by the roomserver component and must reflect current joined
// membership.
type RoomserverAPI interface {
	// QueryRoomDistribution splits the joined membership of roomID into
	// locally hosted user IDs and remote server names, leaving out
	// excludeUser if non-empty.
	QueryRoomDistribution(ctx context.Context, roomID, excludeUser string) (localUsers []string, remoteDomains []spec.ServerName, err error)
	// QueryJoinedRooms returns the rooms userID is currently joined to.
	QueryJoinedRooms(ctx context.Context, userID string) ([]string, error)
	// QueryMembership returns whether userID is joined to roomID.
	QueryMembership(ctx context.Context, roomID, userID string) (bool, error)
}

// FederationAPI delivers ephemeral data units to remote servers. The typing
// server treats delivery as best effort and never retries.
type FederationAPI interface {
	SendEphemeral(ctx context.Context, destination spec.ServerName, txnID string, edu gomatrixserverlib.EDU) error
}

// NewTypingEDU builds the federation EDU carrying a room's current typing
// set. The caller fills in the origin.
func NewTypingEDU(roomID string, userIDs []string) (gomatrixserverlib.EDU, error) {
	content, err := json.Marshal(TypingEvent{
		Type:    MTypingNotification,
		RoomID:  roomID,
		Content: TypingEventContent{UserIDs: userIDs},
	})
	if err != nil {
		return gomatrixserverlib.EDU{}, err
	}
	return gomatrixserverlib.EDU{
		Type:    MTypingNotification,
		Content: content,
	}, nil
}
