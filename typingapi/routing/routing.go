// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/element-hq/typingserver/internal/httputil"
	"github.com/element-hq/typingserver/typingapi/api"
)

// AuthenticateFunc resolves the access token on a request to a local user
// ID. Token validation itself lives outside this component; implementations
// return a JSON error response when the request is not authenticated.
type AuthenticateFunc func(req *http.Request) (userID string, errRes *util.JSONResponse)

// Setup registers the typing server's client-facing routes on the given
// router. The router is expected to be mounted under the client API prefix.
func Setup(
	router *mux.Router,
	inputAPI api.TypingServerInputAPI,
	rsAPI api.RoomserverAPI,
	rateLimits *httputil.RateLimits,
	authenticate AuthenticateFunc,
) {
	router.Handle("/rooms/{roomID}/typing/{userID}",
		util.MakeJSONAPI(util.NewJSONRequestHandler(func(req *http.Request) util.JSONResponse {
			userID, errRes := authenticate(req)
			if errRes != nil {
				return *errRes
			}
			if errRes := rateLimits.Limit(req, userID); errRes != nil {
				return *errRes
			}
			vars := mux.Vars(req)
			return SendTyping(req, userID, vars["roomID"], vars["userID"], inputAPI, rsAPI)
		})),
	).Methods(http.MethodPut, http.MethodOptions)
}
