// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-bridge/bridge/pkg/schema"
)

func TestMemoryStoreSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	sc := schema.PlcSchema{
		PlcID: "10.0.0.5:51000",
		Blocks: []schema.DataBlock{
			{Name: "W", Type: schema.Word, Count: 2},
			{Name: "R", Type: schema.Real, Count: 1},
		},
	}

	require.NoError(t, s.SaveSchema(ctx, sc))

	loaded, err := s.LoadSchema(ctx, sc.PlcID)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.TotalSize)
	assert.Equal(t, sc.Blocks, loaded.Blocks)

	ids, err := s.ListConfiguredPLCs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schema.PlcIdentity{sc.PlcID}, ids)

	require.NoError(t, s.DeleteSchema(ctx, sc.PlcID))
	_, err = s.LoadSchema(ctx, sc.PlcID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreTagsOnlyReturnsEnabled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	plc := schema.PlcIdentity("p1")

	require.NoError(t, s.SaveTag(ctx, schema.TagDefinition{
		Name: "T1", PlcID: plc, VariablePath: "W[0]", Enabled: true,
		Policy: schema.DeliveryPolicy{Mode: schema.ModeOnChange},
	}))
	require.NoError(t, s.SaveTag(ctx, schema.TagDefinition{
		Name: "T2", PlcID: plc, VariablePath: "W[1]", Enabled: false,
		Policy: schema.DeliveryPolicy{Mode: schema.ModeOnChange},
	}))

	tags, err := s.LoadActiveTags(ctx, plc)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "T1", tags[0].Name)
}

func TestMemoryStoreRejectsBadIntervalPolicy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.SaveTag(ctx, schema.TagDefinition{
		Name: "T", PlcID: "p1", VariablePath: "W[0]", Enabled: true,
		Policy: schema.DeliveryPolicy{Mode: schema.ModeInterval, IntervalS: 0},
	})
	assert.Error(t, err)
}
