// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tagcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/pkg/schema"
)

func setupUpdater(t *testing.T) (*Updater, store.Store) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveTag(context.Background(), schema.TagDefinition{
		Name:         "Temperature",
		PlcID:        "P1",
		VariablePath: "W0",
		Enabled:      true,
		Policy:       schema.DeliveryPolicy{Mode: schema.ModeOnChange},
	}))
	require.NoError(t, st.SaveTag(context.Background(), schema.TagDefinition{
		Name:         "RunningFlag",
		PlcID:        "P1",
		VariablePath: "W0.3",
		Enabled:      true,
		Policy:       schema.DeliveryPolicy{Mode: schema.ModeInterval, IntervalS: 5},
	}))

	u := NewUpdater(st)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	u.Start(ctx)
	t.Cleanup(u.Stop)
	return u, st
}

func TestUpdaterResolvesPlainVariable(t *testing.T) {
	u, _ := setupUpdater(t)

	u.Publish("P1", []schema.ParsedVariable{{Name: "W0", Type: schema.Word, Value: "8"}}, time.Now().UnixNano())

	require.Eventually(t, func() bool {
		_, ok := u.Cache().Snapshot("P1", "Temperature")
		return ok
	}, time.Second, 5*time.Millisecond)

	v, ok := u.Cache().Snapshot("P1", "Temperature")
	require.True(t, ok)
	assert.Equal(t, "8", v.Value)
}

func TestUpdaterExtractsBitAsBoolean(t *testing.T) {
	u, _ := setupUpdater(t)

	// 8 = 0b1000, bit 3 set.
	u.Publish("P1", []schema.ParsedVariable{{Name: "W0", Type: schema.Word, Value: "8"}}, time.Now().UnixNano())

	require.Eventually(t, func() bool {
		_, ok := u.Cache().Snapshot("P1", "RunningFlag")
		return ok
	}, time.Second, 5*time.Millisecond)

	v, ok := u.Cache().Snapshot("P1", "RunningFlag")
	require.True(t, ok)
	assert.Equal(t, "TRUE", v.Value)
	assert.Equal(t, schema.Bool, v.Type)
}

func TestUpdaterSkipsUnresolvedTags(t *testing.T) {
	u, _ := setupUpdater(t)

	u.Publish("P1", []schema.ParsedVariable{{Name: "Unrelated", Value: "1"}}, time.Now().UnixNano())
	time.Sleep(20 * time.Millisecond)

	_, ok := u.Cache().Snapshot("P1", "Temperature")
	assert.False(t, ok)
}
