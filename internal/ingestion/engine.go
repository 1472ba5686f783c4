// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingestion is the TCP ingestion engine described in §4.2 of the design notes: one
// acceptor goroutine binding 0.0.0.0:<port>, one per-connection reader
// goroutine per live PLC socket, and a watchdog goroutine that is the
// safety net for readers stuck outside their own read-path timers.
package ingestion

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

// acceptErrorLimiter throttles how often a run of non-timeout Accept errors
// gets logged/retried, so a persistently failing listener (e.g. file
// descriptor exhaustion) degrades to a slow retry loop instead of a tight
// spin that pegs a CPU core.
var acceptErrorLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)

// FrameSink receives a parsed frame from a per-connection reader. The
// Smart Tag Cache's updater implements this to feed its single-consumer
// channel; ingestion never blocks on a slow sink (see Publish below).
type FrameSink interface {
	Publish(plcID schema.PlcIdentity, vars []schema.ParsedVariable, ts int64)
}

// healthRecord is the acceptor's bookkeeping for one live connection.
type healthRecord struct {
	id       uint64
	identity schema.PlcIdentity
	conn     net.Conn
	cancel   context.CancelFunc

	lastDataNs        atomic.Int64
	removalInProgress atomic.Bool
}

// Engine owns the acceptor, the live connection table and the blacklist.
// Start/Stop follow §4.2 of the design notes' lifecycle: Stop flips a running flag,
// aborts the acceptor and every reader, and returns once all of them have
// acknowledged cancellation or a bounded wait elapses.
type Engine struct {
	store store.Store
	sink  FrameSink
	bus   *events.Bus
	pool  *bufferPool

	inactivityTimeout time.Duration
	readTimeout       time.Duration
	fragmentTimeout   time.Duration

	mu           sync.Mutex
	running      bool
	listener     *net.TCPListener
	nextID       uint64
	identityToID map[schema.PlcIdentity]uint64
	health       map[schema.PlcIdentity]*healthRecord
	blacklist    map[schema.PlcIdentity]struct{}
	schemaCache  map[schema.PlcIdentity]*schema.PlcSchema
	schemaKnown  map[schema.PlcIdentity]bool

	counters counters
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// NewEngine builds an Engine. inactivityTimeoutS and readTimeoutS come from
// the program configuration (the design notes' defaults are 15s and 5s).
func NewEngine(st store.Store, sink FrameSink, bus *events.Bus, inactivityTimeoutS, readTimeoutS int) *Engine {
	return &Engine{
		store:             st,
		sink:              sink,
		bus:               bus,
		pool:              newBufferPool(),
		inactivityTimeout: time.Duration(inactivityTimeoutS) * time.Second,
		readTimeout:       time.Duration(readTimeoutS) * time.Second,
		fragmentTimeout:   5 * time.Second,
		identityToID:      make(map[schema.PlcIdentity]uint64),
		health:            make(map[schema.PlcIdentity]*healthRecord),
		blacklist:         make(map[schema.PlcIdentity]struct{}),
		schemaCache:       make(map[schema.PlcIdentity]*schema.PlcSchema),
		schemaKnown:       make(map[schema.PlcIdentity]bool),
	}
}

// Start binds the listener and launches the acceptor and watchdog.
func (e *Engine) Start(port int) error {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.listener = ln
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(2)
	go func() { defer e.wg.Done(); e.acceptLoop() }()
	go func() { defer e.wg.Done(); e.watchdogLoop() }()

	log.Infof("ingestion: listening on %s", ln.Addr())
	return nil
}

// Stop aborts the acceptor and every active reader, then waits (bounded)
// for every goroutine to acknowledge cancellation.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	_ = e.listener.Close()
	for _, hr := range e.health {
		hr.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("ingestion: stop timed out waiting for goroutines")
	}
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// acceptLoop is the single acceptor task described in §4.2 of the design notes.
func (e *Engine) acceptLoop() {
	for e.isRunning() {
		_ = e.listener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := e.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !e.isRunning() {
				return
			}
			log.Warnf("ingestion: accept error: %v", err)
			_ = acceptErrorLimiter.Wait(context.Background())
			continue
		}
		e.handleAccept(conn)
	}
}

// plcHost derives the stable PLC identity from a connection's remote
// address: the bare IP, discarding the ephemeral source port so that a
// reconnect from the same PLC on a new source port keeps the same
// identity and the same assigned numeric id.
func plcHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (e *Engine) handleAccept(conn net.Conn) {
	identity := schema.PlcIdentity(plcHost(conn))

	e.mu.Lock()
	if _, blocked := e.blacklist[identity]; blocked {
		e.mu.Unlock()
		_ = conn.Close()
		return
	}

	if old, exists := e.health[identity]; exists {
		old.cancel()
		delete(e.health, identity)
		e.mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		e.mu.Lock()
	}

	id, known := e.identityToID[identity]
	if !known {
		e.nextID++
		id = e.nextID
		e.identityToID[identity] = id
	}

	ctx, cancel := context.WithCancel(context.Background())
	hr := &healthRecord{id: id, identity: identity, conn: conn, cancel: cancel}
	hr.lastDataNs.Store(time.Now().UnixNano())
	e.health[identity] = hr
	active := len(e.health)
	e.mu.Unlock()

	e.counters.incAccepted()
	e.bus.Publish(events.PlcConnected, identity)
	e.bus.Publish(events.TCPStats, e.counters.snapshot(active))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runConnection(ctx, hr)
	}()
}

// removeHealth tears down bookkeeping for identity exactly once, guarded by
// removalInProgress, and emits the disconnect notification + fresh stats.
func (e *Engine) removeHealth(hr *healthRecord, kind events.Kind) {
	if !hr.removalInProgress.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	if cur, ok := e.health[hr.identity]; ok && cur == hr {
		delete(e.health, hr.identity)
	}
	active := len(e.health)
	e.mu.Unlock()

	_ = hr.conn.Close()
	e.bus.Publish(events.PlcDisconnected, hr.identity)
	e.bus.Publish(kind, hr.identity)
	e.bus.Publish(events.TCPStats, e.counters.snapshot(active))
}

// Disconnect is the admin "force disconnect" operation of §4.2.3 of the design notes.
func (e *Engine) Disconnect(identity schema.PlcIdentity) {
	e.mu.Lock()
	e.blacklist[identity] = struct{}{}
	hr, ok := e.health[identity]
	e.mu.Unlock()

	if !ok {
		return
	}
	hr.cancel()
	e.removeHealth(hr, events.PlcDisconnected)
}

// AllowReconnect clears identity from the blacklist without touching any
// live connection.
func (e *Engine) AllowReconnect(identity schema.PlcIdentity) {
	e.mu.Lock()
	delete(e.blacklist, identity)
	e.mu.Unlock()
}

// schemaFor returns the cached schema for identity, consulting the store
// exactly once per identity if it has not been resolved yet. A nil result
// (cached like any other) means the store has nothing configured for
// identity or the lookup failed, i.e. this PLC runs in auto-detect mode.
func (e *Engine) schemaFor(ctx context.Context, identity schema.PlcIdentity) *schema.PlcSchema {
	e.mu.Lock()
	if e.schemaKnown[identity] {
		s := e.schemaCache[identity]
		e.mu.Unlock()
		return s
	}
	e.mu.Unlock()

	s, err := e.store.LoadSchema(ctx, identity)
	if err != nil && err != store.ErrNotFound {
		log.Warnf("ingestion: schema lookup for %s failed: %v", identity, err)
	}

	e.mu.Lock()
	e.schemaKnown[identity] = true
	e.schemaCache[identity] = s
	e.mu.Unlock()
	return s
}

// InvalidateSchema forces the next connection from identity to re-consult
// the store, used when an external editor changes a PLC's schema. A reader
// that is already running keeps the schema it loaded when it started.
func (e *Engine) InvalidateSchema(identity schema.PlcIdentity) {
	e.mu.Lock()
	delete(e.schemaKnown, identity)
	delete(e.schemaCache, identity)
	e.mu.Unlock()
}
