// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package queue

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sendQueueDepthValue atomic.Int64
	sendQueueDepth      = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "typingserver",
			Subsystem: "federation",
			Name:      "send_queue_depth",
			Help:      "Number of typing EDUs queued for delivery to remote servers",
		},
	)
	edusSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "typingserver",
			Subsystem: "federation",
			Name:      "edus_sent_total",
			Help:      "Total number of typing EDUs successfully sent",
		},
	)
	edusFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "typingserver",
			Subsystem: "federation",
			Name:      "edus_failed_total",
			Help:      "Total number of typing EDUs that failed to send",
		},
	)
)

var registerQueueMetrics sync.Once

func init() {
	registerQueueMetrics.Do(func() {
		prometheus.MustRegister(sendQueueDepth, edusSent, edusFailed)
	})
}

func observeSendQueueDepth(delta int64) {
	v := sendQueueDepthValue.Add(delta)
	sendQueueDepth.Set(float64(v))
}
