// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPoolClassSelection(t *testing.T) {
	p := newBufferPool()

	b := p.Get(100)
	assert.GreaterOrEqual(t, cap(*b), class1KiB)
	p.Put(b)

	b = p.Get(2000)
	assert.GreaterOrEqual(t, cap(*b), class8KiB)
	p.Put(b)

	b = p.Get(60000)
	assert.GreaterOrEqual(t, cap(*b), class64KiB)
	p.Put(b)
}

func TestBufferPoolDegradesOverGlobalCap(t *testing.T) {
	p := newBufferPool()

	held := make([]*[]byte, 0, maxTotalBuffers)
	for i := 0; i < maxTotalBuffers; i++ {
		held = append(held, p.Get(class1KiB))
	}

	// One more Get over the cap must still return something usable rather
	// than block the caller.
	extra := p.Get(class64KiB)
	assert.NotNil(t, extra)
	assert.LessOrEqual(t, cap(*extra), class64KiB)

	for _, b := range held {
		p.Put(b)
	}
	p.Put(extra)
}

func TestBufferPoolReusesReturnedBuffers(t *testing.T) {
	p := newBufferPool()
	b := p.Get(class1KiB)
	*b = append(*b, 1, 2, 3)
	p.Put(b)

	b2 := p.Get(class1KiB)
	assert.Equal(t, 0, len(*b2))
}
