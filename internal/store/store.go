// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store defines the Schema/Tag Store contract described in
// §6 of the design notes and ships a SQLite-backed reference implementation of it.
// Although the store is, per §1 of the design notes, an external collaborator whose
// contract is all this bridge depends on, a concrete adapter is provided
// so the bridge can run standalone without a separately deployed editor.
package store

import (
	"context"
	"errors"

	"github.com/plc-bridge/bridge/pkg/schema"
)

// ErrNotFound is returned by lookups that find nothing, the Go rendition
// of §6 of the design notes' `Option<PlcSchema>` contract.
var ErrNotFound = errors.New("store: not found")

// TagKey identifies a TagDefinition row for bulk deletion.
type TagKey struct {
	PlcID        schema.PlcIdentity
	VariablePath string
}

// Store is the persistence contract the ingestion engine and the smart tag
// cache read from, and the external configuration editor writes to.
type Store interface {
	LoadSchema(ctx context.Context, plcID schema.PlcIdentity) (*schema.PlcSchema, error)
	SaveSchema(ctx context.Context, s schema.PlcSchema) error
	ListConfiguredPLCs(ctx context.Context) ([]schema.PlcIdentity, error)
	DeleteSchema(ctx context.Context, plcID schema.PlcIdentity) error

	// LoadActiveTags returns only enabled TagDefinitions for plcID.
	LoadActiveTags(ctx context.Context, plcID schema.PlcIdentity) ([]schema.TagDefinition, error)
	SaveTag(ctx context.Context, t schema.TagDefinition) error
	DeleteTag(ctx context.Context, plcID schema.PlcIdentity, variablePath string) error
	DeleteTagsBulk(ctx context.Context, keys []TagKey) error

	LoadWsConfig(ctx context.Context) (schema.WsConfig, error)
	SaveWsConfig(ctx context.Context, cfg schema.WsConfig) error

	Close() error
}
