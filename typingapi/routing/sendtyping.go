// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/element-hq/typingserver/internal/httputil"
	"github.com/element-hq/typingserver/typingapi/api"
)

type typingContentJSON struct {
	Typing  bool  `json:"typing"`
	Timeout int64 `json:"timeout"`
}

// SendTyping handles PUT /rooms/{roomID}/typing/{userID}. A successful
// response means the local typing state committed; federation delivery is
// best effort and does not influence the response.
func SendTyping(
	req *http.Request, device string, roomID, userID string,
	inputAPI api.TypingServerInputAPI, rsAPI api.RoomserverAPI,
) util.JSONResponse {
	if device != userID {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("Cannot set another user's typing state"),
		}
	}

	// Only room members may advertise their typing state in it.
	joined, err := rsAPI.QueryMembership(req.Context(), roomID, userID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("QueryMembership failed")
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	if !joined {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("User is not a member of this room"),
		}
	}

	var r typingContentJSON
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}

	if err := inputAPI.InputTypingEvent(req.Context(), &api.InputTypingEvent{
		RoomID:         roomID,
		UserID:         userID,
		Typing:         r.Typing,
		TimeoutMS:      r.Timeout,
		OriginServerTS: spec.AsTimestamp(time.Now()),
	}); err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("InputTypingEvent failed")
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}

	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
