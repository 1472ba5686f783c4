// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events is the in-process lifecycle notification bus described in §6 of the design notes
// describes: plc-connected, plc-disconnected, tcp-stats, and the rest of
// that list, emitted by the ingestion engine and the broadcaster and
// consumed by whatever external shell (desktop, logs, admin API) cares to
// subscribe. It is deliberately not a network message bus — see DESIGN.md
// for why a NATS client was not wired here.
package events

import "time"

// Kind names one of the lifecycle events listed in §6 of the design notes.
type Kind string

const (
	PlcConnected           Kind = "plc-connected"
	PlcDisconnected        Kind = "plc-disconnected"
	TCPStats               Kind = "tcp-stats"
	TCPConnectionDead      Kind = "tcp-connection-dead"
	TCPConnectionClosed    Kind = "tcp-connection-closed"
	TCPConnectionSlow      Kind = "tcp-connection-slow"
	TCPConnectionTimeout   Kind = "tcp-connection-timeout"
	TCPConnectionError     Kind = "tcp-connection-error"
	PlcDataReceived        Kind = "plc-data-received"
	WebsocketCacheUpdate   Kind = "websocket-cache-update"
	WebsocketClientConnect Kind = "websocket-client-connected"
	WebsocketClientClose   Kind = "websocket-client-disconnected"
	WebsocketServerStarted Kind = "websocket-server-started"
	WebsocketServerStopped Kind = "websocket-server-stopped"
)

// Event is one lifecycle notification. Payload is left as `any` because
// each Kind carries a different shape (connection stats, a PLC identity, a
// warning string, ...); subscribers type-assert what they expect.
type Event struct {
	Kind    Kind
	Payload any
	At      time.Time
}

// Bus fans out events to any number of subscribers. Publishing never
// blocks the producer: a subscriber that falls behind misses the events
// published while its buffer is full, rather than stalling the data plane, the same
// "never block the hot path" posture §5 of the design notes takes for the broadcast
// channel.
type Bus struct {
	subscribe   chan chan Event
	unsubscribe chan chan Event
	publish     chan Event
	done        chan struct{}
}

// NewBus starts the bus's single dispatcher goroutine and returns a handle.
// Call Close to stop it.
func NewBus() *Bus {
	b := &Bus{
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		publish:     make(chan Event, 64),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	subscribers := map[chan Event]struct{}{}
	for {
		select {
		case ch := <-b.subscribe:
			subscribers[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(subscribers, ch)
			close(ch)
		case ev := <-b.publish:
			for ch := range subscribers {
				select {
				case ch <- ev:
				default:
					// Subscriber is behind; drop rather than block the bus.
				}
			}
		case <-b.done:
			for ch := range subscribers {
				close(ch)
			}
			return
		}
	}
}

// Publish emits an event of the given kind. Never blocks.
func (b *Bus) Publish(kind Kind, payload any) {
	select {
	case b.publish <- Event{Kind: kind, Payload: payload, At: time.Now()}:
	default:
		// Bus dispatcher itself is behind; the event is dropped. Lifecycle
		// events are best-effort notifications, not a durable log.
	}
}

// Subscribe returns a channel that receives every event published after
// this call. The channel has a small buffer; call Unsubscribe when done.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.subscribe <- ch
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// Close stops the dispatcher goroutine and closes all subscriber channels.
func (b *Bus) Close() {
	close(b.done)
}
