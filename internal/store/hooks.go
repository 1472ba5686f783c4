// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"time"

	"github.com/plc-bridge/bridge/pkg/log"
)

type queryTimingKey struct{}

// sqlHooks satisfies the sqlhooks.Hooks interface, logging query duration
// at debug level, tracing SQL query duration the way a query-hook-wrapped driver typically does.
type sqlHooks struct{}

func (h *sqlHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (h *sqlHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}
