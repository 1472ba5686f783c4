// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broadcaster

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plc-bridge/bridge/internal/metrics"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

const defaultStoreTimeout = 2 * time.Second

// command is the small JSON protocol §4.4.1 of the design notes describes: LIST_PLCS
// and SUBSCRIBE_PLCS. Anything else is ignored.
type command struct {
	Cmd    string   `json:"cmd"`
	PlcIPs []string `json:"plc_ips"`
}

// Client is one connected websocket session.
type Client struct {
	id   uint64
	conn *websocket.Conn

	send chan []byte

	mu           sync.RWMutex
	subscription map[schema.PlcIdentity]struct{} // nil/empty => global

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id uint64, conn *websocket.Conn, channelCap int) *Client {
	if channelCap <= 0 {
		channelCap = 200
	}
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, channelCap),
		closed: make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// wants reports whether this client should receive a batch from plcID.
func (c *Client) wants(plcID schema.PlcIdentity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscription) == 0 {
		return true
	}
	_, ok := c.subscription[plcID]
	return ok
}

// offer pushes payload onto the client's outbound queue without blocking;
// a full queue means the client is falling behind and the message is
// dropped, matching §5 of the design notes' "never block the hot path" posture.
func (c *Client) offer(payload []byte) {
	select {
	case c.send <- payload:
	default:
		metrics.BroadcastDrops.Inc()
		log.Debugf("broadcaster: client %d outbound queue full, dropping batch", c.id)
	}
}

func (c *Client) sendLoop() {
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// receiveLoop parses small inbound commands, per §4.4.1 of the design notes.
func (c *Client) receiveLoop(b *Broadcaster) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleCommand(b, msg)
	}
}

func (c *Client) handleCommand(b *Broadcaster, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		// Not valid JSON: treat a bare "LIST_PLCS" text command the same
		// way, everything else is ignored silently.
		if string(raw) == "LIST_PLCS" {
			cmd.Cmd = "LIST_PLCS"
		} else {
			return
		}
	}

	switch cmd.Cmd {
	case "LIST_PLCS":
		c.replyPLCList(b)
	case "SUBSCRIBE_PLCS":
		c.setSubscription(cmd.PlcIPs)
	default:
		// Unknown command: ignored silently.
	}
}

func (c *Client) setSubscription(plcIPs []string) {
	sub := make(map[schema.PlcIdentity]struct{}, len(plcIPs))
	for _, ip := range plcIPs {
		sub[schema.PlcIdentity(ip)] = struct{}{}
	}
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
	c.offer([]byte(`{"ack":"SUBSCRIBE_PLCS"}`))
}

func (c *Client) replyPLCList(b *Broadcaster) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()

	ids, err := b.store.ListConfiguredPLCs(ctx)
	if err != nil {
		log.Warnf("broadcaster: LIST_PLCS store lookup failed, falling back to tag cache: %v", err)
		ids = b.cache.KnownPLCs()
	}

	payload, err := json.Marshal(struct {
		PLCs []schema.PlcIdentity `json:"plcs"`
	}{ids})
	if err != nil {
		return
	}
	c.offer(payload)
}
