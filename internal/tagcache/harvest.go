// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tagcache

import (
	"time"

	"github.com/plc-bridge/bridge/pkg/schema"
)

// Harvest implements §4.3 of the design notes' read protocol. intervalS selects which
// entries are due:
//
//   - interval policy: emitted if entry.interval_s == intervalS and
//     enough time has passed since last_sent.
//   - on_change policy: emitted if entry.changed and enough time has
//     passed since last_sent; the broadcaster's change harvester passes
//     intervalS=0 to harvest as often as its own tick allows.
//
// Every emitted entry has last_sent set to now and changed cleared,
// atomically with respect to other harvest calls. The returned map is
// keyed "<plc_id>:<tag_name>" so callers can recover the originating PLC.
func (c *Cache) Harvest(intervalS int) map[string]string {
	now := time.Now().UnixNano()
	due := int64(intervalS) * int64(time.Second)

	out := map[string]string{}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		elapsed := now - e.LastSendNs

		switch e.Policy.Mode {
		case schema.ModeOnChange:
			if e.Changed && elapsed >= due {
				out[key] = e.Value
				e.LastSendNs = now
				e.Changed = false
			}
		case schema.ModeInterval:
			if e.Policy.IntervalS == intervalS && elapsed >= due {
				out[key] = e.Value
				e.LastSendNs = now
				e.Changed = false
			}
		}
	}

	return out
}
