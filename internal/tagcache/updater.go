// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tagcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

const (
	definitionRefreshPeriod = 60 * time.Second
	sweepPeriod             = 30 * time.Second
)

type frameMsg struct {
	plcID schema.PlcIdentity
	vars  []schema.ParsedVariable
	ts    int64
}

// Updater is the Smart Tag Cache's single-consumer write path. Every
// per-connection reader calls Publish; a single goroutine drains the
// channel FIFO, which is the whole of §4.3 of the design notes' race-free write
// protocol — no locking is needed to avoid write/write races because
// there is exactly one writer. The slower housekeeping paths (tag
// definition refresh, cache sweep) run on a gocron scheduler instead of
// their own tickers, the same split a taskManager-style package
// uses for its background jobs.
type Updater struct {
	store store.Store
	cache *Cache

	inbox chan frameMsg
	done  chan struct{}
	wg    sync.WaitGroup

	sched gocron.Scheduler

	mu          sync.Mutex
	defsByPlc   map[schema.PlcIdentity][]schema.TagDefinition
	haveFetched map[schema.PlcIdentity]bool
}

func NewUpdater(st store.Store) *Updater {
	return &Updater{
		store:       st,
		cache:       newCache(),
		inbox:       make(chan frameMsg, 256),
		done:        make(chan struct{}),
		defsByPlc:   make(map[schema.PlcIdentity][]schema.TagDefinition),
		haveFetched: make(map[schema.PlcIdentity]bool),
	}
}

// Cache exposes the read-side cache to the broadcaster's harvesters.
func (u *Updater) Cache() *Cache { return u.cache }

// Publish implements ingestion.FrameSink. It never blocks the caller for
// long: the inbox is generously buffered, and a full inbox drops the
// frame rather than stalling the PLC's reader goroutine.
func (u *Updater) Publish(plcID schema.PlcIdentity, vars []schema.ParsedVariable, ts int64) {
	select {
	case u.inbox <- frameMsg{plcID, vars, ts}:
	default:
		log.Warnf("tagcache: inbox full, dropping frame from %s", plcID)
	}
}

// Start launches the single consumer goroutine and the gocron scheduler
// for tag-definition refresh and cache sweeps.
func (u *Updater) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("tagcache: could not create gocron scheduler: %s", err.Error())
	}
	u.sched = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(definitionRefreshPeriod),
		gocron.NewTask(func() { u.refreshAllDefinitions(ctx) }),
	); err != nil {
		log.Fatalf("tagcache: could not register definitions refresh job: %s", err.Error())
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(sweepPeriod),
		gocron.NewTask(u.cache.Sweep),
	); err != nil {
		log.Fatalf("tagcache: could not register sweep job: %s", err.Error())
	}

	sched.Start()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-u.done:
				return
			case msg := <-u.inbox:
				u.process(ctx, msg)
			}
		}
	}()
}

// Stop waits for the consumer goroutine and scheduler to exit.
func (u *Updater) Stop() {
	close(u.done)
	u.wg.Wait()
	if u.sched != nil {
		_ = u.sched.Shutdown()
	}
}

// InvalidateDefinitions drops the cached tag-definition list for plcID so
// the next frame re-reads it from the store, per §4.5 of the design notes.
func (u *Updater) InvalidateDefinitions(plcID schema.PlcIdentity) {
	u.mu.Lock()
	delete(u.defsByPlc, plcID)
	delete(u.haveFetched, plcID)
	u.mu.Unlock()
}

func (u *Updater) process(ctx context.Context, msg frameMsg) {
	defs := u.definitionsFor(ctx, msg.plcID)
	if len(defs) == 0 {
		return
	}

	byName := make(map[string]schema.ParsedVariable, len(msg.vars))
	for _, v := range msg.vars {
		byName[v.Name] = v
	}

	for _, def := range defs {
		base, bit, hasBit := schema.ParseVariablePath(def.VariablePath)
		pv, ok := byName[base]
		if !ok {
			continue
		}

		value := pv.Value
		dataType := pv.Type
		if hasBit {
			if n, err := strconv.ParseUint(pv.Value, 10, 64); err == nil {
				if (n>>uint(bit))&1 == 1 {
					value = "TRUE"
				} else {
					value = "FALSE"
				}
				dataType = schema.Bool
			}
			// Unparseable base value: fall back to the verbatim value,
			// per §4.3 of the design notes.
		}

		u.cache.upsert(msg.plcID, def, value, dataType, msg.ts)
	}
}

// definitionsFor returns the last-known enabled tag definitions for plcID,
// fetching them synchronously the first time a frame from that PLC
// arrives. Subsequent refreshes are the gocron job's job, not this call's.
func (u *Updater) definitionsFor(ctx context.Context, plcID schema.PlcIdentity) []schema.TagDefinition {
	u.mu.Lock()
	fetched := u.haveFetched[plcID]
	defs := u.defsByPlc[plcID]
	u.mu.Unlock()

	if fetched {
		return defs
	}

	return u.refreshOne(ctx, plcID)
}

func (u *Updater) refreshOne(ctx context.Context, plcID schema.PlcIdentity) []schema.TagDefinition {
	loaded, err := u.store.LoadActiveTags(ctx, plcID)
	if err != nil {
		log.Warnf("tagcache: failed to load tag definitions for %s: %v", plcID, err)
		u.mu.Lock()
		defs := u.defsByPlc[plcID]
		u.mu.Unlock()
		return defs
	}

	u.mu.Lock()
	u.defsByPlc[plcID] = loaded
	u.haveFetched[plcID] = true
	u.mu.Unlock()
	return loaded
}

// refreshAllDefinitions is the periodic gocron job: it re-reads the active
// tag list for every PLC this updater has ever seen a frame from.
func (u *Updater) refreshAllDefinitions(ctx context.Context) {
	u.mu.Lock()
	plcs := make([]schema.PlcIdentity, 0, len(u.defsByPlc))
	for id := range u.defsByPlc {
		plcs = append(plcs, id)
	}
	u.mu.Unlock()

	for _, id := range plcs {
		u.refreshOne(ctx, id)
	}
}
