// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-bridge/bridge/pkg/schema"
)

func testSchema() *schema.PlcSchema {
	return &schema.PlcSchema{
		PlcID: "P1",
		Blocks: []schema.DataBlock{
			{Name: "W", Type: schema.Word, Count: 2},
			{Name: "R", Type: schema.Real, Count: 1},
		},
	}
}

// Scenario 1 from §8 of the design notes: schema-driven happy path.
func TestParseSchemaDrivenHappyPath(t *testing.T) {
	raw := []byte{0x00, 0x05, 0x00, 0x0A, 0x3F, 0x80, 0x00, 0x00}
	vars := Parse(raw, testSchema())

	require.Len(t, vars, 3)
	assert.Equal(t, "W[0]", vars[0].Name)
	assert.Equal(t, "5", vars[0].Value)
	assert.Equal(t, "W[1]", vars[1].Name)
	assert.Equal(t, "10", vars[1].Value)
	assert.Equal(t, "R[0]", vars[2].Name)
	assert.Equal(t, "1.000000", vars[2].Value)
}

func TestParseStopsOnInsufficientBytes(t *testing.T) {
	raw := []byte{0x00, 0x05, 0x00, 0x0A, 0x3F, 0x80} // missing 2 bytes of REAL
	vars := Parse(raw, testSchema())
	require.Len(t, vars, 2)
	assert.Equal(t, "W[1]", vars[1].Name)
}

func TestParseEmptySchemaFragmentProducesNothing(t *testing.T) {
	vars := Parse(nil, testSchema())
	assert.Empty(t, vars)
}

func TestParseNegativeSignedTypes(t *testing.T) {
	sc := &schema.PlcSchema{Blocks: []schema.DataBlock{{Name: "I", Type: schema.Int, Count: 1}}}
	vars := Parse([]byte{0xFF, 0xFF}, sc)
	require.Len(t, vars, 1)
	assert.Equal(t, "-1", vars[0].Value)
}

func TestAutoDetectExactly520BytesAlwaysMixed(t *testing.T) {
	raw := make([]byte, mixedLayoutSize)
	vars := Parse(raw, nil)
	require.Len(t, vars, 65*3)
	assert.Equal(t, "W0", vars[0].Name)
	assert.Equal(t, "I0", vars[65].Name)
	assert.Equal(t, "R0", vars[130].Name)
}

func TestAutoDetectRealRatioHeuristic(t *testing.T) {
	raw := make([]byte, 16) // 4 groups of 4 bytes
	putFloat32(raw[0:4], 1.5)
	putFloat32(raw[4:8], 2.25)
	putFloat32(raw[8:12], -3.75)
	putFloat32(raw[12:16], 100.0)

	vars := Parse(raw, nil)
	require.Len(t, vars, 4)
	for _, v := range vars {
		assert.Equal(t, schema.Real, v.Type)
	}
}

func TestAutoDetectFallsBackToDwordThenWordThenByte(t *testing.T) {
	// 8 zero bytes: not a plausible float (0 is outside [1e-6,1e6] abs range
	// exclusive of 0 itself... actually abs(0) < 1e-6, so the ratio check
	// fails) -> falls through to dword (len%4==0).
	vars := Parse(make([]byte, 8), nil)
	require.Len(t, vars, 2)
	assert.Equal(t, schema.Dword, vars[0].Type)

	// 6 bytes: not %4, is %2 -> word.
	vars = Parse(make([]byte, 6), nil)
	require.Len(t, vars, 3)
	assert.Equal(t, schema.Word, vars[0].Type)

	// 5 bytes: neither %4 nor %2 -> raw bytes.
	vars = Parse(make([]byte, 5), nil)
	require.Len(t, vars, 5)
	assert.Equal(t, schema.Byte, vars[0].Type)
}

func putFloat32(b []byte, f float32) {
	binary.BigEndian.PutUint32(b, math.Float32bits(f))
}
