// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingestion

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/pkg/schema"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []schema.ParsedVariable
}

func (s *recordingSink) Publish(_ schema.PlcIdentity, vars []schema.ParsedVariable, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, vars...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestEngineAutoDetectsAndPublishesFrame(t *testing.T) {
	st := store.NewMemoryStore()
	sink := &recordingSink{}
	bus := events.NewBus()
	defer bus.Close()

	e := NewEngine(st, sink, bus, 15, 5)
	port := freePort(t)
	require.NoError(t, e.Start(port))
	defer e.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x00, 0x01, 0x00, 0x02})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEngineDisconnectBlacklistsIdentity(t *testing.T) {
	st := store.NewMemoryStore()
	sink := &recordingSink{}
	bus := events.NewBus()
	defer bus.Close()

	e := NewEngine(st, sink, bus, 15, 5)
	port := freePort(t)
	require.NoError(t, e.Start(port))
	defer e.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	require.NoError(t, err)
	identity := schema.PlcIdentity(host)

	e.Disconnect(identity)

	e.mu.Lock()
	_, blocked := e.blacklist[identity]
	e.mu.Unlock()
	assert.True(t, blocked)

	conn.Close()
}
