// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/parser"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

const maxAccumulator = 64 * 1024

// runConnection is the per-connection reader of §4.2.1 of the design notes. It owns
// hr.conn exclusively until it returns, at which point it tears down its
// own health record (guarded against a concurrent watchdog kill).
func (e *Engine) runConnection(ctx context.Context, hr *healthRecord) {
	s := e.schemaFor(ctx, hr.identity)

	expected := 0
	if s != nil {
		expected = s.TotalSize
	}

	if tc, ok := hr.conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	initialCap := expected
	if initialCap < 1024 {
		initialCap = 1024
	}
	accPtr := e.pool.Get(initialCap)
	defer e.pool.Put(accPtr)
	acc := *accPtr

	lastFragment := time.Now()
	readBuf := make([]byte, 4096)
	consecutiveTimeouts := 0

	kind := events.TCPConnectionDead

	for {
		select {
		case <-ctx.Done():
			kind = events.TCPConnectionDead
			goto exit
		default:
		}

		now := time.Now()
		if now.Sub(time.Unix(0, hr.lastDataNs.Load())) > e.inactivityTimeout {
			kind = events.TCPConnectionTimeout
			goto exit
		}

		if len(acc) > 0 && now.Sub(lastFragment) > e.fragmentTimeout {
			acc = acc[:0]
		}

		_ = hr.conn.SetReadDeadline(time.Now().Add(e.readTimeout))
		n, err := hr.conn.Read(readBuf)

		switch {
		case n == 0 && err != nil && isTimeout(err):
			consecutiveTimeouts++
			if consecutiveTimeouts >= 3 {
				kind = events.TCPConnectionTimeout
				goto exit
			}
			continue

		case n == 0 && errors.Is(err, io.EOF):
			// Peer closed its side cleanly. Ends the connection with
			// tcp-connection-closed, not an error; no byte total is
			// counted or reported.
			kind = events.TCPConnectionClosed
			goto exit

		case n == 0 && err != nil:
			if errors.Is(err, net.ErrClosed) {
				kind = events.TCPConnectionDead
			} else {
				kind = events.TCPConnectionError
				log.Warnf("ingestion: read error from %s: %v", hr.identity, err)
			}
			goto exit

		case n > 0:
			consecutiveTimeouts = 0
			hr.lastDataNs.Store(time.Now().UnixNano())
			lastFragment = time.Now()

			if len(acc)+n > maxAccumulator {
				// Desynchronised framing: drop what we had rather than grow
				// the accumulator without bound.
				e.counters.incDropped()
				acc = acc[:0]
				continue
			}
			acc = append(acc, readBuf[:n]...)

			if expected > 0 {
				if len(acc) >= expected {
					e.emitFrame(hr.identity, acc[:expected], s)
					acc = acc[:0]
				}
			} else {
				e.emitFrame(hr.identity, acc, nil)
				acc = acc[:0]
			}

		default:
			// n == 0, err == nil: nothing read, nothing to do this tick.
		}
	}

exit:
	*accPtr = acc[:0]
	e.removeHealth(hr, kind)
}

func (e *Engine) emitFrame(identity schema.PlcIdentity, raw []byte, s *schema.PlcSchema) {
	frame := make([]byte, len(raw))
	copy(frame, raw)

	vars := parser.Parse(frame, s)
	ts := time.Now().UnixNano()
	e.sink.Publish(identity, vars, ts)
	e.bus.Publish(events.PlcDataReceived, identity)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
