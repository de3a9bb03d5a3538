// Copyright 2025 New Vector Ltd.
// Copyright 2017 Vector Creations Ltd
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

// StreamPosition is a position in the typing event stream. Every change to
// any room's typing set advances it by exactly one; clients hand their last
// seen position back to ask what changed since.
type StreamPosition int64
