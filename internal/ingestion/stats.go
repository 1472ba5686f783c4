// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"sync/atomic"

	"github.com/plc-bridge/bridge/internal/metrics"
)

// Stats is a point-in-time snapshot of the acceptor's bookkeeping, emitted
// alongside plc-connected/plc-disconnected notifications (an admin
// Disconnect included) so subscribers never have to poll for connection
// counts.
type Stats struct {
	Active        int    `json:"active"`
	TotalAccepted uint64 `json:"total_accepted"`
	TotalDropped  uint64 `json:"total_dropped"`
}

// counters are the engine's free-running totals, incremented from the
// acceptor and the per-connection readers.
type counters struct {
	accepted uint64
	dropped  uint64
}

func (c *counters) incAccepted() {
	atomic.AddUint64(&c.accepted, 1)
	metrics.ConnectionsAccepted.Inc()
}

func (c *counters) incDropped() {
	atomic.AddUint64(&c.dropped, 1)
	metrics.AccumulatorDrops.Inc()
}

func (c *counters) snapshot(active int) Stats {
	metrics.ConnectionsActive.Set(float64(active))
	return Stats{
		Active:        active,
		TotalAccepted: atomic.LoadUint64(&c.accepted),
		TotalDropped:  atomic.LoadUint64(&c.dropped),
	}
}
