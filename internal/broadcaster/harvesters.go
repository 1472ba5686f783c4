// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broadcaster

import (
	"strings"
	"time"

	"github.com/plc-bridge/bridge/internal/metrics"
	"github.com/plc-bridge/bridge/pkg/schema"
)

// harvesterSpec is one row of §4.4.2 of the design notes' table: a tick period and
// the set of interval-policy values it is responsible for. The change
// harvester passes intervalS=0 to Cache.Harvest, which is how on_change
// entries are selected there.
type harvesterSpec struct {
	name      string
	period    time.Duration
	intervals []int
}

var harvesterSpecs = []harvesterSpec{
	{name: "fast", period: 500 * time.Millisecond, intervals: []int{1, 2, 3}},
	{name: "medium", period: 2 * time.Second, intervals: []int{4, 5, 6, 7}},
	{name: "slow", period: 5 * time.Second, intervals: []int{8, 9, 10}},
	{name: "change", period: 100 * time.Millisecond, intervals: []int{0}},
}

func (b *Broadcaster) startHarvesters() {
	for _, spec := range harvesterSpecs {
		spec := spec
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.runHarvester(spec)
		}()
	}
}

func (b *Broadcaster) runHarvester(spec harvesterSpec) {
	ticker := time.NewTicker(spec.period)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.tick(spec)
		}
	}
}

// tick merges the harvest of every interval this task is responsible for,
// groups the result by originating PLC, and dispatches one batch per PLC.
func (b *Broadcaster) tick(spec harvesterSpec) {
	start := time.Now()
	defer func() {
		metrics.HarvesterLatency.WithLabelValues(spec.name).Observe(time.Since(start).Seconds())
	}()

	merged := map[string]string{}
	for _, interval := range spec.intervals {
		for k, v := range b.cache.Harvest(interval) {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return
	}

	byPlc := map[schema.PlcIdentity]map[string]string{}
	for key, value := range merged {
		plcID, tag := splitCacheKey(key)
		m, ok := byPlc[plcID]
		if !ok {
			m = map[string]string{}
			byPlc[plcID] = m
		}
		m[tag] = value
	}

	for plcID, tags := range byPlc {
		payload := encodeBatch(tags)
		if payload == nil {
			continue
		}
		b.deliver(plcID, payload)
	}
}

func splitCacheKey(key string) (schema.PlcIdentity, string) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return "", key
	}
	return schema.PlcIdentity(key[:idx]), key[idx+1:]
}
