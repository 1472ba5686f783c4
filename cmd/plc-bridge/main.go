// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plc-bridge/bridge/internal/api"
	"github.com/plc-bridge/bridge/internal/broadcaster"
	"github.com/plc-bridge/bridge/internal/config"
	"github.com/plc-bridge/bridge/internal/events"
	"github.com/plc-bridge/bridge/internal/ingestion"
	"github.com/plc-bridge/bridge/internal/runtimeEnv"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/internal/tagcache"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

func main() {
	var flagConfigFile string
	var flagGops, flagDev, flagLogDateTime bool
	var flagLogLevel string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagDev, "dev", false, "Enable development components: admin API swagger UI")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Overrides the configured log level: `[debug, info, warn, err, crit]`")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)
	if flagLogLevel != "" {
		config.Keys.LogLevel = flagLogLevel
	}
	log.SetLogLevel(config.Keys.LogLevel)
	log.SetLogDateTime(config.Keys.LogDate || flagLogDateTime)

	if strings.HasPrefix(config.Keys.DB, "env:") {
		config.Keys.DB = os.Getenv(strings.TrimPrefix(config.Keys.DB, "env:"))
	}

	st, err := store.Open(config.Keys.DB)
	if err != nil {
		log.Fatalf("opening schema/tag store: %s", err.Error())
	}

	bus := events.NewBus()
	logEvents(bus)

	updater := tagcache.NewUpdater(st)
	engine := ingestion.NewEngine(st, updater, bus, config.Keys.InactivityTimeoutS, config.Keys.ReadTimeoutS)
	bcast := broadcaster.New(st, updater.Cache(), bus)

	adminAPI := &api.Api{
		Store:   st,
		Engine:  engine,
		Cache:   updater.Cache(),
		Bcaster: bcast,
		Dev:     flagDev,
	}

	// Every listener must be bound before dropping root, the same ordering
	// used for the HTTP listener below.
	if err := engine.Start(config.Keys.TCPPort); err != nil {
		log.Fatalf("starting ingestion engine: %s", err.Error())
	}

	wsCfg := schema.WsConfig{
		BindAddresses: config.Keys.WS.BindAddresses,
		Port:          config.Keys.WS.Port,
		MaxClients:    config.Keys.WS.MaxClients,
		ChannelCap:    config.Keys.WS.ChannelCapacity,
	}
	if err := bcast.Start(wsCfg); err != nil {
		log.Fatalf("starting websocket broadcaster: %s", err.Error())
	}

	adminListener, err := net.Listen("tcp", config.Keys.AdminAddr)
	if err != nil {
		log.Fatalf("binding admin api address %s: %s", config.Keys.AdminAddr, err.Error())
	}

	if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
		log.Fatalf("error while changing user: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	updater.Start(ctx)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	adminAPI.MountRoutes(r)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	handler := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	adminSrv := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      handler,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminSrv.Serve(adminListener); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")

		cancel()
		updater.Stop()
		bcast.Stop()
		engine.Stop()
		_ = adminSrv.Shutdown(context.Background())
		_ = st.Close()
	}()

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(25)
	}
	runtimeEnv.SystemdNotifiy(true, "running")
	log.Infof("plc-bridge listening: tcp=%d ws=%v:%d admin=%s", config.Keys.TCPPort, config.Keys.WS.BindAddresses, config.Keys.WS.Port, config.Keys.AdminAddr)
	wg.Wait()
	log.Print("Graceful shutdown completed!")
}

// logEvents is a minimal subscriber that turns lifecycle events into log
// lines, so an operator running without any other tooling still sees
// connect/disconnect/slow-connection activity.
func logEvents(bus *events.Bus) {
	ch := bus.Subscribe()
	go func() {
		for ev := range ch {
			switch ev.Kind {
			case events.TCPConnectionDead, events.TCPConnectionTimeout, events.TCPConnectionError:
				log.Warnf("ingestion: %s: %v", ev.Kind, ev.Payload)
			case events.TCPStats, events.WebsocketCacheUpdate:
				// High frequency, debug only.
				log.Debugf("%s: %v", ev.Kind, ev.Payload)
			default:
				log.Infof("%s: %v", ev.Kind, ev.Payload)
			}
		}
	}()
}
