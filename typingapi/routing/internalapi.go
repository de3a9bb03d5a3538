// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/element-hq/typingserver/internal/httputil"
	"github.com/element-hq/typingserver/syncapi/streams"
	"github.com/element-hq/typingserver/syncapi/types"
	"github.com/element-hq/typingserver/typingapi/api"
)

type currentPositionResponse struct {
	Position types.StreamPosition `json:"position"`
}

type eventsForUserRequest struct {
	UserID string               `json:"user_id"`
	From   types.StreamPosition `json:"from"`
	Limit  int                  `json:"limit"`
}

type eventsForUserResponse struct {
	Events []api.TypingEvent    `json:"events"`
	Latest types.StreamPosition `json:"latest"`
}

// SetupInternalAPI exposes the typing event source to the sync component
// over the internal HTTP API. These routes are not client-facing and carry
// no authentication of their own.
func SetupInternalAPI(router *mux.Router, provider *streams.TypingStreamProvider) {
	router.Handle("/typing/currentPosition",
		util.MakeJSONAPI(util.NewJSONRequestHandler(func(req *http.Request) util.JSONResponse {
			return util.JSONResponse{
				Code: http.StatusOK,
				JSON: currentPositionResponse{Position: provider.CurrentPosition()},
			}
		})),
	).Methods(http.MethodGet, http.MethodOptions)

	router.Handle("/typing/eventsForUser",
		util.MakeJSONAPI(util.NewJSONRequestHandler(func(req *http.Request) util.JSONResponse {
			var r eventsForUserRequest
			if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
				return *resErr
			}
			events, latest, err := provider.NewEventsForUser(req.Context(), r.UserID, r.From, r.Limit)
			if err != nil {
				util.GetLogger(req.Context()).WithError(err).Error("NewEventsForUser failed")
				return util.JSONResponse{
					Code: http.StatusInternalServerError,
					JSON: spec.InternalServerError{},
				}
			}
			if events == nil {
				events = []api.TypingEvent{}
			}
			return util.JSONResponse{
				Code: http.StatusOK,
				JSON: eventsForUserResponse{Events: events, Latest: latest},
			}
		})),
	).Methods(http.MethodPost, http.MethodOptions)
}
