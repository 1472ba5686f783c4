// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tagcache is the smart tag cache described in §4.3 of the design
// notes: it turns the latest LiveFrame per PLC into a per-logical-tag view
// with change detection and time-based delivery scheduling, read by the
// websocket broadcaster's harvester tasks.
package tagcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/plc-bridge/bridge/internal/metrics"
	"github.com/plc-bridge/bridge/pkg/schema"
)

// cacheSizeLimit implements the memory-bound enforcement of §4.3 of the
// design notes: once the cache holds more than this many entries, the
// oldest evictFraction (by last_sent) are evicted. The sweep itself is rate-limited by how
// often the caller invokes Sweep, not by anything in this package — see
// updater.go's gocron job, ticking every sweepPeriod.
const (
	cacheSizeLimit = 2000
	evictFraction  = 0.2
)

func cacheKey(plcID schema.PlcIdentity, tagName string) string {
	return fmt.Sprintf("%s:%s", plcID, tagName)
}

// Cache holds the tag_cache concurrent map described in §4.3 of the design notes. Its
// only write path is the Updater's single-consumer goroutine (cache.go's
// locking exists for the harvesters, which are concurrent readers plus
// occasional atomic updates to last_sent/changed on harvest).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*schema.CachedTagValue
}

func newCache() *Cache {
	return &Cache{entries: make(map[string]*schema.CachedTagValue)}
}

// upsert writes or updates the cached value for (plcID, def), preserving
// last_sent across updates as §4.3 of the design notes requires.
func (c *Cache) upsert(plcID schema.PlcIdentity, def schema.TagDefinition, value string, dataType schema.DataType, now int64) {
	key := cacheKey(plcID, def.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &schema.CachedTagValue{
			TagName: def.Name,
			PlcID:   plcID,
			Policy:  def.Policy,
		}
		c.entries[key] = entry
	}

	if def.Policy.Mode == schema.ModeOnChange {
		entry.Changed = entry.Value != value
	}

	entry.Value = value
	entry.Type = dataType
	entry.Policy = def.Policy
	entry.LastUpdate = now

	metrics.TagCacheSize.Set(float64(len(c.entries)))
}

// Sweep evicts the oldest evictFraction of entries (by LastSendNs) if the
// cache has grown past cacheSizeLimit. Called periodically by updater.go's
// gocron job rather than on every upsert, which is the throttle §4.3 of
// the design notes asks for.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) <= cacheSizeLimit {
		return
	}

	type aged struct {
		key string
		ts  int64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.LastSendNs})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts < all[j].ts })

	n := int(float64(len(all)) * evictFraction)
	for i := 0; i < n; i++ {
		delete(c.entries, all[i].key)
	}
	metrics.TagCacheSize.Set(float64(len(c.entries)))
}

// KnownPLCs returns the distinct PLC identities currently represented in
// the cache, used as a fallback PLC list when the Schema Store is
// unreachable (§4.4.1 of the design notes).
func (c *Cache) KnownPLCs() []schema.PlcIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[schema.PlcIdentity]struct{})
	for _, e := range c.entries {
		seen[e.PlcID] = struct{}{}
	}
	out := make([]schema.PlcIdentity, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Len reports the current number of cached tags, for metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of one cached tag's value, mainly for tests and
// the admin API.
func (c *Cache) Snapshot(plcID schema.PlcIdentity, tagName string) (schema.CachedTagValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(plcID, tagName)]
	if !ok {
		return schema.CachedTagValue{}, false
	}
	return *e, true
}
