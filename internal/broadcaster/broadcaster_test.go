// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broadcaster

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/internal/tagcache"
	"github.com/plc-bridge/bridge/pkg/schema"
)

func TestEncodeBatchRoundTripsThroughMsgpack(t *testing.T) {
	batch := map[string]string{"Temperature": "21.5"}
	out := encodeBatch(batch)
	require.True(t, len(out) > len(msgpackPrefix))
	assert.Equal(t, msgpackPrefix, string(out[:len(msgpackPrefix)]))

	raw, err := base64.StdEncoding.DecodeString(string(out[len(msgpackPrefix):]))
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, msgpack.Unmarshal(raw, &decoded))
	assert.Equal(t, "21.5", decoded["Temperature"])
}

func TestSplitCacheKeySeparatesPlcAndTag(t *testing.T) {
	plc, tag := splitCacheKey("10.0.0.5:Temperature")
	assert.Equal(t, schema.PlcIdentity("10.0.0.5"), plc)
	assert.Equal(t, "Temperature", tag)
}

func freeBroadcasterPort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestBroadcasterDeliversOnChangeBatchToClient(t *testing.T) {
	st := store.NewMemoryStore()
	updater := tagcache.NewUpdater(st)
	bus := events.NewBus()
	defer bus.Close()

	b := New(st, updater.Cache(), bus)
	port := freeBroadcasterPort(t)
	require.NoError(t, b.Start(schema.WsConfig{
		BindAddresses: []string{"127.0.0.1"},
		Port:          port,
		MaxClients:    10,
		ChannelCap:    20,
	}))
	defer b.Stop()

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, st.SaveTag(context.Background(), schema.TagDefinition{
		Name:         "Temperature",
		PlcID:        "P1",
		VariablePath: "W0",
		Enabled:      true,
		Policy:       schema.DeliveryPolicy{Mode: schema.ModeOnChange},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updater.Start(ctx)
	defer updater.Stop()
	updater.Publish("P1", []schema.ParsedVariable{{Name: "W0", Value: "99"}}, time.Now().UnixNano())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), msgpackPrefix)
}

func TestClientListPlcsCommandReplies(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveSchema(context.Background(), schema.PlcSchema{PlcID: "P1"}))
	updater := tagcache.NewUpdater(st)
	bus := events.NewBus()
	defer bus.Close()

	b := New(st, updater.Cache(), bus)
	port := freeBroadcasterPort(t)
	require.NoError(t, b.Start(schema.WsConfig{BindAddresses: []string{"127.0.0.1"}, Port: port, MaxClients: 10, ChannelCap: 20}))
	defer b.Stop()

	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"LIST_PLCS"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply struct {
		PLCs []schema.PlcIdentity `json:"plcs"`
	}
	require.NoError(t, json.Unmarshal(msg, &reply))
	assert.Contains(t, reply.PLCs, schema.PlcIdentity("P1"))
}
