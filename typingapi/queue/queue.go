// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package queue

import (
	"context"
	"sync"

	"github.com/Arceliar/phony"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/matrix-org/gomatrixserverlib"
	"github.com/matrix-org/gomatrixserverlib/spec"
	log "github.com/sirupsen/logrus"

	"github.com/element-hq/typingserver/internal/util"
	"github.com/element-hq/typingserver/typingapi/api"
)

// OutgoingQueues dispatches typing EDUs to remote servers. Every destination
// gets its own actor, so a slow or unreachable server never delays another
// and the caller never blocks on network I/O.
type OutgoingQueues struct {
	ctx    context.Context
	origin spec.ServerName
	client api.FederationAPI
	mutex  sync.Mutex
	queues map[spec.ServerName]*destinationQueue
}

// NewOutgoingQueues creates a new set of outgoing EDU queues sending via
// the given federation client. ctx bounds the lifetime of all sends.
func NewOutgoingQueues(ctx context.Context, origin spec.ServerName, client api.FederationAPI) *OutgoingQueues {
	return &OutgoingQueues{
		ctx:    ctx,
		origin: util.NormalizeServerName(origin),
		client: client,
		queues: make(map[spec.ServerName]*destinationQueue),
	}
}

// SendEDU queues edu for delivery to each of the given destinations. The
// local server and duplicate destinations are dropped. Delivery failures are
// reported asynchronously, never to the caller.
func (oq *OutgoingQueues) SendEDU(edu gomatrixserverlib.EDU, destinations []spec.ServerName) {
	edu.Origin = string(oq.origin)
	seen := make(map[spec.ServerName]struct{}, len(destinations))
	for _, destination := range destinations {
		destination = util.NormalizeServerName(destination)
		if destination == oq.origin || destination == "" {
			continue
		}
		if _, ok := seen[destination]; ok {
			continue
		}
		seen[destination] = struct{}{}
		oq.getQueue(destination).sendEDU(edu)
	}
}

func (oq *OutgoingQueues) getQueue(destination spec.ServerName) *destinationQueue {
	oq.mutex.Lock()
	defer oq.mutex.Unlock()
	queue := oq.queues[destination]
	if queue == nil {
		queue = &destinationQueue{
			ctx:         oq.ctx,
			destination: destination,
			client:      oq.client,
		}
		oq.queues[destination] = queue
	}
	return queue
}

// destinationQueue serialises sends to one remote server.
type destinationQueue struct {
	phony.Inbox
	ctx         context.Context
	destination spec.ServerName
	client      api.FederationAPI
}

func (dq *destinationQueue) sendEDU(edu gomatrixserverlib.EDU) {
	observeSendQueueDepth(1)
	dq.Act(nil, func() {
		defer observeSendQueueDepth(-1)
		txnID := uuid.NewString()
		if err := dq.client.SendEphemeral(dq.ctx, dq.destination, txnID, edu); err != nil {
			edusFailed.Inc()
			log.WithError(err).WithFields(log.Fields{
				"destination": dq.destination,
				"txn_id":      txnID,
			}).Error("Failed to send typing EDU")
			sentry.CaptureException(err)
			return
		}
		edusSent.Inc()
		log.WithFields(log.Fields{
			"destination": dq.destination,
			"txn_id":      txnID,
		}).Debug("Sent typing EDU")
	})
}
