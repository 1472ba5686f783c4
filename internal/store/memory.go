// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"sync"

	"github.com/plc-bridge/bridge/pkg/schema"
)

// MemoryStore is an in-memory Store used by package tests that exercise
// ingestion, the tag cache, or the broadcaster without a SQLite file.
type MemoryStore struct {
	mu       sync.Mutex
	schemas  map[schema.PlcIdentity]schema.PlcSchema
	tags     map[schema.PlcIdentity]map[string]schema.TagDefinition
	wsConfig schema.WsConfig
	hasWs    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemas: map[schema.PlcIdentity]schema.PlcSchema{},
		tags:    map[schema.PlcIdentity]map[string]schema.TagDefinition{},
	}
}

func (m *MemoryStore) LoadSchema(_ context.Context, plcID schema.PlcIdentity) (*schema.PlcSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[plcID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s
	cp.Blocks = append([]schema.DataBlock(nil), s.Blocks...)
	return &cp, nil
}

func (m *MemoryStore) SaveSchema(_ context.Context, s schema.PlcSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Recompute()
	m.schemas[s.PlcID] = s
	return nil
}

func (m *MemoryStore) ListConfiguredPLCs(_ context.Context) ([]schema.PlcIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.PlcIdentity, 0, len(m.schemas))
	for id := range m.schemas {
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryStore) DeleteSchema(_ context.Context, plcID schema.PlcIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schemas, plcID)
	return nil
}

func (m *MemoryStore) LoadActiveTags(_ context.Context, plcID schema.PlcIdentity) ([]schema.TagDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPath := m.tags[plcID]
	out := make([]schema.TagDefinition, 0, len(byPath))
	for _, t := range byPath {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveTag(_ context.Context, t schema.TagDefinition) error {
	if err := t.Policy.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byPath, ok := m.tags[t.PlcID]
	if !ok {
		byPath = map[string]schema.TagDefinition{}
		m.tags[t.PlcID] = byPath
	}
	byPath[t.VariablePath] = t
	return nil
}

func (m *MemoryStore) DeleteTag(_ context.Context, plcID schema.PlcIdentity, variablePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags[plcID], variablePath)
	return nil
}

func (m *MemoryStore) DeleteTagsBulk(_ context.Context, keys []TagKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.tags[k.PlcID], k.VariablePath)
	}
	return nil
}

func (m *MemoryStore) LoadWsConfig(_ context.Context) (schema.WsConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasWs {
		return schema.WsConfig{}, ErrNotFound
	}
	return m.wsConfig, nil
}

func (m *MemoryStore) SaveWsConfig(_ context.Context, cfg schema.WsConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsConfig = cfg
	m.hasWs = true
	return nil
}

func (m *MemoryStore) Close() error { return nil }
