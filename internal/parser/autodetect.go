// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/plc-bridge/bridge/pkg/schema"
)

// mixedLayoutSize is the canonical bootstrap frame: 65 WORDs, 65 INTs, then
// 65 REALs, per §4.1 step 2 of the design notes.
const mixedLayoutSize = 65*2 + 65*2 + 65*4 // 520

// autoDetect classifies an unconfigured PLC's payload using the priority
// order from §4.1 of the design notes: exact mixed-layout size,
// float-ratio heuristic, 4-byte alignment, 2-byte alignment, raw bytes.
// The exact-size case must be checked before the float-ratio heuristic: a
// genuine 520-byte mixed frame has 65 real REALs packed into its last 260
// bytes, which is already half of its 4-byte groups, enough to pass
// looksLikeReals' 30% threshold and get misclassified as an all-REAL array.
func autoDetect(raw []byte) []schema.ParsedVariable {
	n := len(raw)

	if n == mixedLayoutSize {
		return decodeMixedLayout(raw)
	}

	if n >= 4 && n%4 == 0 && looksLikeReals(raw) {
		return decodeRealArray(raw, "R")
	}

	if n%4 == 0 {
		return decodeDwordArray(raw)
	}

	if n%2 == 0 {
		return decodeWordArray(raw, "W", schema.Word)
	}

	return decodeByteArray(raw)
}

// looksLikeReals reports whether at least 30% of 4-byte groups decode as
// finite IEEE-754 floats with magnitude in [1e-6, 1e6] — the bootstrap
// heuristic that lets an operator see plausible values before a schema is
// registered.
func looksLikeReals(raw []byte) bool {
	groups := len(raw) / 4
	if groups == 0 {
		return false
	}

	valid := 0
	for i := 0; i < groups; i++ {
		f := math.Float32frombits(binary.BigEndian.Uint32(raw[i*4 : i*4+4]))
		if isPlausibleReal(f) {
			valid++
		}
	}

	return float64(valid) >= 0.3*float64(groups)
}

func isPlausibleReal(f float32) bool {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return false
	}
	abs := math.Abs(float64(f))
	return abs >= 1e-6 && abs <= 1e6
}

func decodeRealArray(raw []byte, prefix string) []schema.ParsedVariable {
	count := len(raw) / 4
	vars := make([]schema.ParsedVariable, 0, count)
	for i := 0; i < count; i++ {
		f := math.Float32frombits(binary.BigEndian.Uint32(raw[i*4 : i*4+4]))
		vars = append(vars, schema.ParsedVariable{
			Name:  fmt.Sprintf("%s%d", prefix, i),
			Type:  schema.Real,
			Value: fmt.Sprintf("%.6f", f),
		})
	}
	return vars
}

func decodeDwordArray(raw []byte) []schema.ParsedVariable {
	count := len(raw) / 4
	vars := make([]schema.ParsedVariable, 0, count)
	for i := 0; i < count; i++ {
		v := binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		vars = append(vars, schema.ParsedVariable{
			Name:  fmt.Sprintf("DW%d", i),
			Type:  schema.Dword,
			Value: fmt.Sprintf("%d", v),
		})
	}
	return vars
}

func decodeWordArray(raw []byte, prefix string, t schema.DataType) []schema.ParsedVariable {
	count := len(raw) / 2
	vars := make([]schema.ParsedVariable, 0, count)
	for i := 0; i < count; i++ {
		v := binary.BigEndian.Uint16(raw[i*2 : i*2+2])
		vars = append(vars, schema.ParsedVariable{
			Name:  fmt.Sprintf("%s%d", prefix, i),
			Type:  t,
			Value: fmt.Sprintf("%d", v),
		})
	}
	return vars
}

func decodeByteArray(raw []byte) []schema.ParsedVariable {
	vars := make([]schema.ParsedVariable, 0, len(raw))
	for i, b := range raw {
		vars = append(vars, schema.ParsedVariable{
			Name:  fmt.Sprintf("B%d", i),
			Type:  schema.Byte,
			Value: fmt.Sprintf("%d", b),
		})
	}
	return vars
}

// decodeMixedLayout is the canonical 520-byte block: 65 WORDs (W0..W64),
// 65 INTs (I0..I64), then 65 REALs (R0..R64).
func decodeMixedLayout(raw []byte) []schema.ParsedVariable {
	vars := make([]schema.ParsedVariable, 0, 65*3)

	for i := 0; i < 65; i++ {
		off := i * 2
		v := binary.BigEndian.Uint16(raw[off : off+2])
		vars = append(vars, schema.ParsedVariable{Name: fmt.Sprintf("W%d", i), Type: schema.Word, Value: fmt.Sprintf("%d", v)})
	}

	base := 65 * 2
	for i := 0; i < 65; i++ {
		off := base + i*2
		v := int16(binary.BigEndian.Uint16(raw[off : off+2]))
		vars = append(vars, schema.ParsedVariable{Name: fmt.Sprintf("I%d", i), Type: schema.Int, Value: fmt.Sprintf("%d", v)})
	}

	base = 65*2 + 65*2
	for i := 0; i < 65; i++ {
		off := base + i*4
		f := math.Float32frombits(binary.BigEndian.Uint32(raw[off : off+4]))
		vars = append(vars, schema.ParsedVariable{Name: fmt.Sprintf("R%d", i), Type: schema.Real, Value: fmt.Sprintf("%.6f", f)})
	}

	return vars
}
