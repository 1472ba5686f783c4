// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/plc-bridge/bridge/pkg/schema"
)

var (
	registerOnce    sync.Once
	registerDriver  string
	registerDriverN = "sqlite3-plc-bridge"
)

// registerHookedDriver registers the sqlhooks-wrapped sqlite3 driver exactly
// once per process, mirroring internal/repository/dbConnection.go's pattern
// of wrapping the driver for query-duration tracing.
func registerHookedDriver() {
	registerOnce.Do(func() {
		sql.Register(registerDriverN, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &sqlHooks{}))
		registerDriver = registerDriverN
	})
}

// SQLiteStore is the reference Store implementation backed by a single
// SQLite database file.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open connects to (and, if necessary, creates and migrates) the SQLite
// database at path. SQLite is single-writer, so only one connection is
// ever held open — the standard reasoning for
// SetMaxOpenConns(1).
func Open(path string) (*SQLiteStore, error) {
	registerHookedDriver()

	db, err := sqlx.Open(registerDriver, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sq = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

func (s *SQLiteStore) LoadSchema(ctx context.Context, plcID schema.PlcIdentity) (*schema.PlcSchema, error) {
	row := struct {
		PlcID     string    `db:"plc_id"`
		TotalSize int       `db:"total_size"`
		UpdatedAt time.Time `db:"updated_at"`
	}{}

	query, args, err := sq.Select("plc_id", "total_size", "updated_at").
		From("plc_schema").Where(squirrel.Eq{"plc_id": string(plcID)}).ToSql()
	if err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	blockQuery, blockArgs, err := sq.Select("name", "data_type", "element_count", "block_order").
		From("data_block").Where(squirrel.Eq{"plc_id": string(plcID)}).OrderBy("block_order").ToSql()
	if err != nil {
		return nil, err
	}

	var blocks []schema.DataBlock
	if err := s.db.SelectContext(ctx, &blocks, blockQuery, blockArgs...); err != nil {
		return nil, err
	}

	return &schema.PlcSchema{
		PlcID:     schema.PlcIdentity(row.PlcID),
		Blocks:    blocks,
		TotalSize: row.TotalSize,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *SQLiteStore) SaveSchema(ctx context.Context, sc schema.PlcSchema) error {
	sc.Recompute()
	sc.UpdatedAt = time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert, args, err := sq.Insert("plc_schema").
		Columns("plc_id", "total_size", "updated_at").
		Values(string(sc.PlcID), sc.TotalSize, sc.UpdatedAt).
		Suffix("ON CONFLICT(plc_id) DO UPDATE SET total_size=excluded.total_size, updated_at=excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("store: save schema: %w", err)
	}

	del, delArgs, err := sq.Delete("data_block").Where(squirrel.Eq{"plc_id": string(sc.PlcID)}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return err
	}

	ins := sq.Insert("data_block").Columns("plc_id", "block_order", "name", "data_type", "element_count")
	for i, b := range sc.Blocks {
		ins = ins.Values(string(sc.PlcID), i, b.Name, string(b.Type), b.Count)
	}
	if len(sc.Blocks) > 0 {
		insQuery, insArgs, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insQuery, insArgs...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListConfiguredPLCs(ctx context.Context) ([]schema.PlcIdentity, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT plc_id FROM plc_schema ORDER BY plc_id`); err != nil {
		return nil, err
	}
	out := make([]schema.PlcIdentity, len(ids))
	for i, id := range ids {
		out[i] = schema.PlcIdentity(id)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSchema(ctx context.Context, plcID schema.PlcIdentity) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM plc_schema WHERE plc_id = ?`, string(plcID))
	return err
}

func (s *SQLiteStore) LoadActiveTags(ctx context.Context, plcID schema.PlcIdentity) ([]schema.TagDefinition, error) {
	rows := []struct {
		TagName         string         `db:"tag_name"`
		PlcID           string         `db:"plc_id"`
		VariablePath    string         `db:"variable_path"`
		Description     sql.NullString `db:"description"`
		Unit            sql.NullString `db:"unit"`
		Enabled         bool           `db:"enabled"`
		PolicyMode      string         `db:"policy_mode"`
		PolicyIntervalS int            `db:"policy_interval_s"`
	}{}

	query, args, err := sq.Select("tag_name", "plc_id", "variable_path", "description", "unit", "enabled", "policy_mode", "policy_interval_s").
		From("tag_definition").
		Where(squirrel.Eq{"plc_id": string(plcID), "enabled": true}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]schema.TagDefinition, 0, len(rows))
	for _, r := range rows {
		out = append(out, schema.TagDefinition{
			Name:         r.TagName,
			PlcID:        schema.PlcIdentity(r.PlcID),
			VariablePath: r.VariablePath,
			Description:  r.Description.String,
			Unit:         r.Unit.String,
			Enabled:      r.Enabled,
			Policy: schema.DeliveryPolicy{
				Mode:      schema.DeliveryMode(r.PolicyMode),
				IntervalS: r.PolicyIntervalS,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].VariablePath < out[j].VariablePath })
	return out, nil
}

func (s *SQLiteStore) SaveTag(ctx context.Context, t schema.TagDefinition) error {
	if err := t.Policy.Validate(); err != nil {
		return err
	}

	query, args, err := sq.Insert("tag_definition").
		Columns("plc_id", "variable_path", "tag_name", "description", "unit", "enabled", "policy_mode", "policy_interval_s").
		Values(string(t.PlcID), t.VariablePath, t.Name, t.Description, t.Unit, t.Enabled, string(t.Policy.Mode), t.Policy.IntervalS).
		Suffix(`ON CONFLICT(plc_id, variable_path) DO UPDATE SET
			tag_name=excluded.tag_name, description=excluded.description, unit=excluded.unit,
			enabled=excluded.enabled, policy_mode=excluded.policy_mode, policy_interval_s=excluded.policy_interval_s`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, plcID schema.PlcIdentity, variablePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tag_definition WHERE plc_id = ? AND variable_path = ?`, string(plcID), variablePath)
	return err
}

func (s *SQLiteStore) DeleteTagsBulk(ctx context.Context, keys []TagKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_definition WHERE plc_id = ? AND variable_path = ?`, string(k.PlcID), k.VariablePath); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadWsConfig(ctx context.Context) (schema.WsConfig, error) {
	row := struct {
		BindAddresses   string `db:"bind_addresses"`
		Port            int    `db:"port"`
		MaxClients      int    `db:"max_clients"`
		ChannelCapacity int    `db:"channel_capacity"`
	}{}

	err := s.db.GetContext(ctx, &row, `SELECT bind_addresses, port, max_clients, channel_capacity FROM ws_config WHERE id = 1`)
	if err == sql.ErrNoRows {
		return schema.WsConfig{}, ErrNotFound
	}
	if err != nil {
		return schema.WsConfig{}, err
	}

	var addrs []string
	if err := json.Unmarshal([]byte(row.BindAddresses), &addrs); err != nil {
		return schema.WsConfig{}, err
	}

	return schema.WsConfig{
		BindAddresses: addrs,
		Port:          row.Port,
		MaxClients:    row.MaxClients,
		ChannelCap:    row.ChannelCapacity,
	}, nil
}

func (s *SQLiteStore) SaveWsConfig(ctx context.Context, cfg schema.WsConfig) error {
	addrs, err := json.Marshal(cfg.BindAddresses)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ws_config (id, bind_addresses, port, max_clients, channel_capacity)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bind_addresses=excluded.bind_addresses, port=excluded.port,
			max_clients=excluded.max_clients, channel_capacity=excluded.channel_capacity`,
		string(addrs), cfg.Port, cfg.MaxClients, cfg.ChannelCap)
	return err
}
