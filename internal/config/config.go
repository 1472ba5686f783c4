// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the bridge's JSON configuration file:
// CLI flags for the path and a few overrides, then a JSON file merged on
// top of the compiled-in defaults.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/plc-bridge/bridge/pkg/log"
)

// WsConfig is the websocket broadcaster's listen/admission configuration.
type WsConfig struct {
	BindAddresses   []string `json:"bind-addresses"`
	Port            int      `json:"port"`
	MaxClients      int      `json:"max-clients"`
	ChannelCapacity int      `json:"channel-capacity"`
}

// ProgramConfig is the top-level configuration file format.
type ProgramConfig struct {
	// Port the TCP ingestion engine binds 0.0.0.0 to.
	TCPPort int `json:"tcp-port"`

	// 'sqlite3' is the only supported schema/tag store driver today.
	DBDriver string `json:"db-driver"`
	DB       string `json:"db"`

	// Drop root permissions once privileged ports are bound.
	User  string `json:"user"`
	Group string `json:"group"`

	WS WsConfig `json:"ws"`

	// Address the admin HTTP API (and /metrics) listens on.
	AdminAddr string `json:"admin-addr"`

	InactivityTimeoutS int `json:"inactivity-timeout"`
	ReadTimeoutS       int `json:"read-timeout"`

	Validate bool `json:"validate"`

	LogLevel string `json:"loglevel"`
	LogDate  bool   `json:"logdate"`
}

var Keys ProgramConfig = ProgramConfig{
	TCPPort:  8502,
	DBDriver: "sqlite3",
	DB:       "./var/plc-bridge.db",
	WS: WsConfig{
		BindAddresses:   []string{"0.0.0.0"},
		Port:            8765,
		MaxClients:      256,
		ChannelCapacity: 200,
	},
	AdminAddr:          ":8766",
	InactivityTimeoutS: 15,
	ReadTimeoutS:       5,
	Validate:           false,
	LogLevel:           "info",
}

// Init reads flagConfigFile (if it exists) and merges it on top of the
// defaults above. A missing file is not an error — the defaults are a
// complete, runnable configuration on their own.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}

	if Keys.Validate {
		Validate(configSchema, raw)
	}

	if Keys.WS.Port <= 0 {
		log.Fatal("config: ws.port must be set")
	}
}
