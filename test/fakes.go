// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package test

import (
	"context"
	"strings"
	"sync"

	"github.com/matrix-org/gomatrixserverlib"
	"github.com/matrix-org/gomatrixserverlib/spec"
)

// Roomserver is an in-memory stand-in for the roomserver's membership
// queries. Members are split into local users and remote domains based on
// the configured server name, the same way the production query does.
type Roomserver struct {
	ServerName spec.ServerName

	mu      sync.Mutex
	err     error
	members map[string][]string // room ID -> joined user IDs
}

func NewRoomserver(serverName spec.ServerName) *Roomserver {
	return &Roomserver{
		ServerName: serverName,
		members:    make(map[string][]string),
	}
}

// SetErr makes every subsequent query fail with err.
func (r *Roomserver) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// AddMember marks userID as joined to roomID.
func (r *Roomserver) AddMember(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members[roomID] {
		if existing == userID {
			return
		}
	}
	r.members[roomID] = append(r.members[roomID], userID)
}

func (r *Roomserver) QueryRoomDistribution(
	_ context.Context, roomID, excludeUser string,
) (localUsers []string, remoteDomains []spec.ServerName, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, nil, r.err
	}
	seenDomains := make(map[spec.ServerName]struct{})
	for _, userID := range r.members[roomID] {
		if excludeUser != "" && userID == excludeUser {
			continue
		}
		domain := userDomain(userID)
		if domain == r.ServerName {
			localUsers = append(localUsers, userID)
			continue
		}
		if _, ok := seenDomains[domain]; !ok {
			seenDomains[domain] = struct{}{}
			remoteDomains = append(remoteDomains, domain)
		}
	}
	return
}

func (r *Roomserver) QueryJoinedRooms(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var rooms []string
	for roomID, users := range r.members {
		for _, u := range users {
			if u == userID {
				rooms = append(rooms, roomID)
				break
			}
		}
	}
	return rooms, nil
}

func (r *Roomserver) QueryMembership(_ context.Context, roomID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, u := range r.members[roomID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func userDomain(userID string) spec.ServerName {
	if _, domain, ok := strings.Cut(userID, ":"); ok {
		return spec.ServerName(domain)
	}
	return ""
}

// RecordedEDU is one EDU captured by the FederationClient.
type RecordedEDU struct {
	Destination spec.ServerName
	TxnID       string
	EDU         gomatrixserverlib.EDU
}

// FederationClient records EDU sends instead of performing them. Set Err
// before use to make every send fail.
type FederationClient struct {
	Err error

	mu    sync.Mutex
	sends []RecordedEDU
}

func (f *FederationClient) SendEphemeral(
	_ context.Context, destination spec.ServerName, txnID string, edu gomatrixserverlib.EDU,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sends = append(f.sends, RecordedEDU{Destination: destination, TxnID: txnID, EDU: edu})
	return nil
}

// Sends returns a copy of every recorded send so far.
func (f *FederationClient) Sends() []RecordedEDU {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedEDU(nil), f.sends...)
}

func (f *FederationClient) SendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}
