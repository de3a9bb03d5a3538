// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package typingapi

import (
	"context"

	"github.com/element-hq/typingserver/internal/caching"
	"github.com/element-hq/typingserver/internal/clock"
	"github.com/element-hq/typingserver/setup/config"
	"github.com/element-hq/typingserver/typingapi/api"
	"github.com/element-hq/typingserver/typingapi/internal"
	"github.com/element-hq/typingserver/typingapi/queue"
)

// NewInternalAPI sets up the typing server component: the typing cache, the
// outbound federation queues and the input API wired together. The returned
// cache is shared with the sync event source and must be stopped on
// shutdown to cancel outstanding expiry timers.
func NewInternalAPI(
	ctx context.Context,
	cfg *config.TypingAPI,
	clk clock.Clock,
	rsAPI api.RoomserverAPI,
	fedClient api.FederationAPI,
) (api.TypingServerInputAPI, *caching.EDUCache) {
	if clk == nil {
		clk = clock.System()
	}
	cache := caching.NewTypingCache(clk)
	queues := queue.NewOutgoingQueues(ctx, cfg.Matrix.ServerName, fedClient)
	return internal.NewTypingServerInternalAPI(cfg, cache, clk, rsAPI, queues), cache
}
