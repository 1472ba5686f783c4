// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tagcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plc-bridge/bridge/pkg/schema"
)

func TestHarvestIntervalPolicyRespectsDueTime(t *testing.T) {
	c := newCache()
	def := schema.TagDefinition{Name: "T", Policy: schema.DeliveryPolicy{Mode: schema.ModeInterval, IntervalS: 2}}
	c.upsert("P1", def, "1", schema.Word, time.Now().UnixNano())

	out := c.Harvest(2)
	assert.Len(t, out, 1)

	// Immediately harvesting again must not re-emit: last_sent was just set.
	out = c.Harvest(2)
	assert.Len(t, out, 0)
}

func TestHarvestOnChangeOnlyEmitsWhenChanged(t *testing.T) {
	c := newCache()
	def := schema.TagDefinition{Name: "T", Policy: schema.DeliveryPolicy{Mode: schema.ModeOnChange}}

	c.upsert("P1", def, "1", schema.Word, time.Now().UnixNano())
	out := c.Harvest(0)
	assert.Len(t, out, 1, "first value is always a change from empty")

	out = c.Harvest(0)
	assert.Len(t, out, 0, "no new value since last harvest")

	c.upsert("P1", def, "2", schema.Word, time.Now().UnixNano())
	out = c.Harvest(0)
	assert.Len(t, out, 1)
	assert.Equal(t, "2", out[cacheKey("P1", "T")])
}

func TestSweepEvictsOldestFifthWhenOverCapacity(t *testing.T) {
	c := newCache()
	policy := schema.DeliveryPolicy{Mode: schema.ModeOnChange}

	for i := 0; i < cacheSizeLimit+10; i++ {
		name := fmtName(i)
		c.upsert("P1", schema.TagDefinition{Name: name, Policy: policy}, "v", schema.Word, int64(i))
	}
	assert.Equal(t, cacheSizeLimit+10, c.Len(), "sweep only runs when Sweep is called, not on every upsert")

	c.Sweep()
	assert.Less(t, c.Len(), cacheSizeLimit+10)
}

func fmtName(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "tag0"
	}
	out := []byte{}
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return "tag" + string(out)
}
