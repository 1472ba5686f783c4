// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"time"

	"github.com/plc-bridge/bridge/internal/events"
)

const watchdogTick = 2 * time.Second

// watchdogLoop is the safety net of §4.2.2 of the design notes: it does not depend on
// a reader's own timers, so a goroutine stuck outside its read path (e.g.
// blocked on something other than the socket) still gets torn down.
func (e *Engine) watchdogLoop() {
	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.watchdogTick()
		}
	}
}

func (e *Engine) watchdogTick() {
	now := time.Now()
	half := e.inactivityTimeout / 2

	e.mu.Lock()
	records := make([]*healthRecord, 0, len(e.health))
	for _, hr := range e.health {
		records = append(records, hr)
	}
	e.mu.Unlock()

	for _, hr := range records {
		age := now.Sub(time.Unix(0, hr.lastDataNs.Load()))

		if age > e.inactivityTimeout {
			if hr.removalInProgress.CompareAndSwap(false, true) {
				hr.cancel()
				e.teardownStale(hr)
			}
			continue
		}

		if age > half {
			e.bus.Publish(events.TCPConnectionSlow, hr.identity)
		}
	}
}

// teardownStale finishes the removal the watchdog itself initiated: the
// per-connection reader has already been cancelled, but may be blocked in
// a read call, so the watchdog removes the bookkeeping and closes the
// socket directly instead of waiting for the reader to notice ctx.Done.
func (e *Engine) teardownStale(hr *healthRecord) {
	e.mu.Lock()
	if cur, ok := e.health[hr.identity]; ok && cur == hr {
		delete(e.health, hr.identity)
	}
	active := len(e.health)
	e.mu.Unlock()

	_ = hr.conn.Close()
	e.bus.Publish(events.PlcDisconnected, hr.identity)
	e.bus.Publish(events.TCPConnectionDead, hr.identity)
	e.bus.Publish(events.TCPStats, e.counters.snapshot(active))
}
