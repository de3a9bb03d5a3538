// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matrix-org/gomatrixserverlib"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/element-hq/typingserver/typingapi/routing"
)

// httpRoomserver queries the roomserver component over its internal API.
type httpRoomserver struct {
	baseURL string
	client  *http.Client
}

func newHTTPRoomserver(baseURL string) *httpRoomserver {
	return &httpRoomserver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *httpRoomserver) post(ctx context.Context, path string, request, response interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close() // nolint: errcheck
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("roomserver %s returned HTTP %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(response)
}

func (r *httpRoomserver) QueryRoomDistribution(
	ctx context.Context, roomID, excludeUser string,
) ([]string, []spec.ServerName, error) {
	request := struct {
		RoomID      string `json:"room_id"`
		ExcludeUser string `json:"exclude_user,omitempty"`
	}{RoomID: roomID, ExcludeUser: excludeUser}
	var response struct {
		LocalUsers    []string          `json:"local_users"`
		RemoteDomains []spec.ServerName `json:"remote_domains"`
	}
	if err := r.post(ctx, "/api/queryRoomDistribution", &request, &response); err != nil {
		return nil, nil, err
	}
	return response.LocalUsers, response.RemoteDomains, nil
}

func (r *httpRoomserver) QueryJoinedRooms(ctx context.Context, userID string) ([]string, error) {
	request := struct {
		UserID string `json:"user_id"`
	}{UserID: userID}
	var response struct {
		RoomIDs []string `json:"room_ids"`
	}
	if err := r.post(ctx, "/api/queryJoinedRooms", &request, &response); err != nil {
		return nil, err
	}
	return response.RoomIDs, nil
}

func (r *httpRoomserver) QueryMembership(ctx context.Context, roomID, userID string) (bool, error) {
	request := struct {
		RoomID string `json:"room_id"`
		UserID string `json:"user_id"`
	}{RoomID: roomID, UserID: userID}
	var response struct {
		Joined bool `json:"joined"`
	}
	if err := r.post(ctx, "/api/queryMembership", &request, &response); err != nil {
		return false, err
	}
	return response.Joined, nil
}

// httpFederation pushes EDUs to remote servers over the federation transaction
// endpoint. Request signing is handled by an egress proxy in deployments that
// need it, so the client here only speaks plain HTTPS.
type httpFederation struct {
	origin spec.ServerName
	client *http.Client
}

func newHTTPFederation(origin spec.ServerName) *httpFederation {
	return &httpFederation{
		origin: origin,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *httpFederation) SendEphemeral(
	ctx context.Context, destination spec.ServerName, txnID string, edu gomatrixserverlib.EDU,
) error {
	txn := struct {
		Origin         spec.ServerName         `json:"origin"`
		OriginServerTS spec.Timestamp          `json:"origin_server_ts"`
		EDUs           []gomatrixserverlib.EDU `json:"edus"`
		PDUs           []json.RawMessage       `json:"pdus"`
	}{
		Origin:         f.origin,
		OriginServerTS: spec.AsTimestamp(time.Now()),
		EDUs:           []gomatrixserverlib.EDU{edu},
		PDUs:           []json.RawMessage{},
	}
	body, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://%s/_matrix/federation/v1/send/%s", destination, txnID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close() // nolint: errcheck
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("federation send to %s returned HTTP %d", destination, res.StatusCode)
	}
	return nil
}

// newTokenAuthenticator resolves bearer tokens against the account service's
// whoami endpoint.
func newTokenAuthenticator(authURL string) routing.AuthenticateFunc {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(req *http.Request) (string, *util.JSONResponse) {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			return "", &util.JSONResponse{
				Code: http.StatusUnauthorized,
				JSON: spec.MissingToken("Missing access token"),
			}
		}
		authReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, authURL, nil)
		if err != nil {
			return "", &util.JSONResponse{
				Code: http.StatusInternalServerError,
				JSON: spec.InternalServerError{},
			}
		}
		authReq.Header.Set("Authorization", "Bearer "+token)
		res, err := client.Do(authReq)
		if err != nil {
			util.GetLogger(req.Context()).WithError(err).Error("whoami request failed")
			return "", &util.JSONResponse{
				Code: http.StatusInternalServerError,
				JSON: spec.InternalServerError{},
			}
		}
		defer res.Body.Close() // nolint: errcheck
		if res.StatusCode != http.StatusOK {
			return "", &util.JSONResponse{
				Code: http.StatusUnauthorized,
				JSON: spec.UnknownToken("Unknown access token"),
			}
		}
		var whoami struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(res.Body).Decode(&whoami); err != nil || whoami.UserID == "" {
			return "", &util.JSONResponse{
				Code: http.StatusInternalServerError,
				JSON: spec.InternalServerError{},
			}
		}
		return whoami.UserID, nil
	}
}
