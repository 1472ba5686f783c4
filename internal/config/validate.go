// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"

	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks instance against the compiled JSON Schema source. Like
// internal/config's other validation path, a schema compile or validation
// failure is fatal at startup, since it means the on-disk config is not
// something the rest of the bridge can safely interpret.
func Validate(schemaSrc string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("config.schema.json", schemaSrc)
	if err != nil {
		log.Fatalf("config: compiling schema: %s", err.Error())
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		log.Fatalf("config: %s", err.Error())
	}

	if err := sch.Validate(v); err != nil {
		log.Fatalf("config: %s", err.Error())
	}
}
