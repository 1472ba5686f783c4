// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broadcaster is the websocket broadcaster described in §4.4 of the design notes: it
// binds one listener per configured address, accepts client sessions,
// and runs four harvester goroutines that read the Smart Tag Cache on
// distinct periods and push encoded batches out to subscribed clients.
package broadcaster

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/metrics"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/internal/tagcache"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Broadcaster owns the live client table and the four harvester
// goroutines. Filtering per §4.4.3 of the design notes is done by pushing every
// harvested batch directly into each matching client's own outbound
// queue rather than modelling one broadcast channel per PLC plus a
// multiplexed client-side select — same observable behaviour (a
// subscribed client only ever sees its PLCs' batches, and a slow
// client never blocks another), simpler to express in Go.
type Broadcaster struct {
	store store.Store
	cache *tagcache.Cache
	bus   *events.Bus

	cfg schema.WsConfig

	mu        sync.RWMutex
	clients   map[uint64]*Client
	nextID    uint64
	listeners []net.Listener
	servers   []*http.Server

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func New(st store.Store, cache *tagcache.Cache, bus *events.Bus) *Broadcaster {
	return &Broadcaster{
		store:   st,
		cache:   cache,
		bus:     bus,
		clients: make(map[uint64]*Client),
		stopCh:  make(chan struct{}),
	}
}

// Start binds a listener per cfg.BindAddresses, per §4.4 of the design notes. If none
// bind successfully, it returns an error.
func (b *Broadcaster) Start(cfg schema.WsConfig) error {
	b.cfg = cfg

	var bound int
	for _, addr := range cfg.BindAddresses {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, cfg.Port))
		if err != nil {
			log.Warnf("broadcaster: bind %s:%d failed: %v", addr, cfg.Port, err)
			continue
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/", b.handleWS)
		srv := &http.Server{Handler: mux}

		b.listeners = append(b.listeners, ln)
		b.servers = append(b.servers, srv)
		bound++

		b.wg.Add(1)
		go func(ln net.Listener, srv *http.Server) {
			defer b.wg.Done()
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Warnf("broadcaster: server on %s exited: %v", ln.Addr(), err)
			}
		}(ln, srv)
	}

	if bound == 0 {
		return fmt.Errorf("broadcaster: no bind address of %v succeeded", cfg.BindAddresses)
	}

	b.bus.Publish(events.WebsocketServerStarted, cfg)
	b.startHarvesters()
	return nil
}

// Stop tears down every listener, harvester and client. Multiple bind
// addresses mean multiple independent http.Servers; shutting them down
// concurrently through an errgroup keeps Stop's latency at one 2s timeout
// rather than one per listener.
func (b *Broadcaster) Stop() {
	close(b.stopCh)

	var g errgroup.Group
	for _, srv := range b.servers {
		srv := srv
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	for _, c := range b.clients {
		c.close()
	}
	b.clients = make(map[uint64]*Client)
	b.mu.Unlock()

	b.wg.Wait()
	b.bus.Publish(events.WebsocketServerStopped, nil)
}

func (b *Broadcaster) activeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ActiveClients reports the current number of connected websocket clients,
// for the admin API's stats endpoint.
func (b *Broadcaster) ActiveClients() int {
	return b.activeCount()
}

// handleWS is the per-connection acceptor of §4.4.1 of the design notes. Admission
// control (§4.4.4) happens before the handshake: over max_clients, the
// socket is dropped without ever calling Upgrade (a 503 is written only
// when the connection cannot be hijacked).
func (b *Broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	if b.cfg.MaxClients > 0 && b.activeCount() >= b.cfg.MaxClients {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	client := newClient(id, conn, b.cfg.ChannelCap)
	b.clients[id] = client
	metrics.BroadcastClients.Set(float64(len(b.clients)))
	b.mu.Unlock()

	b.bus.Publish(events.WebsocketClientConnect, id)
	b.runClient(client)
}

func (b *Broadcaster) removeClient(c *Client) {
	b.mu.Lock()
	delete(b.clients, c.id)
	metrics.BroadcastClients.Set(float64(len(b.clients)))
	b.mu.Unlock()
	b.bus.Publish(events.WebsocketClientClose, c.id)
}

// runClient spawns the sender and receiver sub-tasks and waits for either
// to finish, per §4.4.1 of the design notes: any sub-task ending tears down the client.
func (b *Broadcaster) runClient(c *Client) {
	defer b.removeClient(c)
	defer c.close()

	done := make(chan struct{}, 2)
	go func() { c.sendLoop(); done <- struct{}{} }()
	go func() { c.receiveLoop(b); done <- struct{}{} }()
	<-done
}

// deliver pushes an already-encoded batch to every client whose
// subscription matches plcID (empty subscription means "all"), never
// blocking on a slow client.
func (b *Broadcaster) deliver(plcID schema.PlcIdentity, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		if c.wants(plcID) {
			c.offer(payload)
		}
	}
}
