// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package parser is the bridge's binary wire-format decoder: a pure,
// deterministic, non-blocking function turning a PLC's raw process image
// into an ordered list of named, typed values, driven by a per-PLC schema
// when one is registered and falling back to heuristic auto-detection
// otherwise.
package parser

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/plc-bridge/bridge/pkg/schema"
)

// Parse decodes raw according to sc. If sc is nil, auto-detection (§4.1 of
// the design notes) is used instead. Parse never errors and never panics:
// insufficient trailing bytes simply truncate the output, under a
// no-exception contract — the caller always gets whatever could be
// produced.
func Parse(raw []byte, sc *schema.PlcSchema) []schema.ParsedVariable {
	if sc != nil {
		return parseWithSchema(raw, sc)
	}
	return autoDetect(raw)
}

func parseWithSchema(raw []byte, sc *schema.PlcSchema) []schema.ParsedVariable {
	vars := make([]schema.ParsedVariable, 0, len(raw)/2)
	offset := 0

	for _, block := range sc.Blocks {
		sz := schema.TypeSize(block.Type)
		if sz == 0 {
			continue
		}

		for i := 0; i < block.Count; i++ {
			if offset+sz > len(raw) {
				return vars
			}

			value := decode(raw[offset:offset+sz], block.Type)
			vars = append(vars, schema.ParsedVariable{
				Name:  fmt.Sprintf("%s[%d]", block.Name, i),
				Type:  block.Type,
				Value: value,
			})
			offset += sz
		}
	}

	return vars
}

func decode(b []byte, t schema.DataType) string {
	switch t {
	case schema.Byte:
		return fmt.Sprintf("%d", b[0])
	case schema.Word:
		return fmt.Sprintf("%d", binary.BigEndian.Uint16(b))
	case schema.Int:
		return fmt.Sprintf("%d", int16(binary.BigEndian.Uint16(b)))
	case schema.Dword:
		return fmt.Sprintf("%d", binary.BigEndian.Uint32(b))
	case schema.Dint:
		return fmt.Sprintf("%d", int32(binary.BigEndian.Uint32(b)))
	case schema.Real:
		return fmt.Sprintf("%.6f", math.Float32frombits(binary.BigEndian.Uint32(b)))
	case schema.Lword:
		return fmt.Sprintf("%d", binary.BigEndian.Uint64(b))
	case schema.Lint:
		return fmt.Sprintf("%d", int64(binary.BigEndian.Uint64(b)))
	case schema.Lreal:
		return fmt.Sprintf("%.6f", math.Float64frombits(binary.BigEndian.Uint64(b)))
	default:
		return fmt.Sprintf("%d", b[0])
	}
}
