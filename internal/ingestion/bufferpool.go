// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"sync"
	"sync/atomic"
)

// Three size classes, per §5 of the design notes: 1 KiB, 8 KiB, 64 KiB. Each class is
// backed by its own sync.Pool; the per-class free counter does not limit
// how many returned buffers a class keeps. The total number of
// buffers handed out and not yet returned is capped globally at 100. Over
// cap, Get degrades payload capacity (returns a smaller buffer) rather than
// blocking the per-connection reader that asked for one.
const (
	class1KiB  = 1024
	class8KiB  = 8 * 1024
	class64KiB = 64 * 1024

	maxTotalBuffers = 100
	freeListCap     = 20
)

var bufferClasses = [...]int{class1KiB, class8KiB, class64KiB}

// bufferPool hands out []byte accumulators sized to the smallest class that
// fits the requested capacity.
type bufferPool struct {
	live  int64 // atomic: buffers currently checked out
	pools [len(bufferClasses)]sync.Pool
	free  [len(bufferClasses)]chan struct{} // counting semaphore, cap=freeListCap
}

func newBufferPool() *bufferPool {
	p := &bufferPool{}
	for i, size := range bufferClasses {
		size := size
		p.pools[i] = sync.Pool{New: func() any {
			b := make([]byte, 0, size)
			return &b
		}}
		p.free[i] = make(chan struct{}, freeListCap)
	}
	return p
}

func (p *bufferPool) classFor(want int) int {
	for i, size := range bufferClasses {
		if want <= size {
			return i
		}
	}
	return len(bufferClasses) - 1
}

// Get returns a buffer with at least `want` bytes of capacity, unless the
// global live-buffer cap has been hit, in which case it returns a freshly
// allocated 1 KiB buffer — degraded capacity, never a block.
func (p *bufferPool) Get(want int) *[]byte {
	class := p.classFor(want)

	if atomic.AddInt64(&p.live, 1) > maxTotalBuffers {
		// Degrade: hand back a freshly allocated minimal buffer rather
		// than stalling the caller waiting for capacity. It stays
		// counted as live until Put returns it.
		b := make([]byte, 0, class1KiB)
		return &b
	}

	buf := p.pools[class].Get().(*[]byte)
	*buf = (*buf)[:0]
	return buf
}

// Put returns buf to the sync.Pool of the class its capacity falls in;
// buffers larger than the biggest class go to that class. Every returned
// buffer is pooled: Get never releases the class's free counter, so the
// counter does not cap the pool, and only the garbage collector's
// clearing of sync.Pool bounds what a class holds.
func (p *bufferPool) Put(buf *[]byte) {
	atomic.AddInt64(&p.live, -1)

	class := p.classFor(cap(*buf))
	select {
	case p.free[class] <- struct{}{}:
		p.pools[class].Put(buf)
	default:
		<-p.free[class]
		p.free[class] <- struct{}{}
		p.pools[class].Put(buf)
	}
}
