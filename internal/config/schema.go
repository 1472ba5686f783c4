// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

var configSchema = `
{
  "type": "object",
  "properties": {
    "tcp-port": {
      "description": "Port the TCP ingestion engine binds to (0.0.0.0:<port>).",
      "type": "integer"
    },
    "db-driver": {
      "description": "Schema/tag store driver, currently only 'sqlite3'.",
      "type": "string"
    },
    "db": {
      "description": "Path to the SQLite database file holding schemas and tag definitions.",
      "type": "string"
    },
    "user": {
      "description": "Drop root permissions to this user once the privileged port is bound.",
      "type": "string"
    },
    "group": {
      "description": "Drop root permissions to this group once the privileged port is bound.",
      "type": "string"
    },
    "ws": {
      "type": "object",
      "properties": {
        "bind-addresses": {
          "type": "array",
          "items": { "type": "string" }
        },
        "port": { "type": "integer" },
        "max-clients": { "type": "integer" },
        "channel-capacity": { "type": "integer" }
      }
    },
    "admin-addr": {
      "description": "Address the admin/metrics HTTP API listens on.",
      "type": "string"
    },
    "inactivity-timeout": {
      "description": "Seconds of silence before a connection is considered dead.",
      "type": "integer"
    },
    "read-timeout": {
      "description": "Per-read timeout in seconds.",
      "type": "integer"
    },
    "validate": {
      "description": "Validate the config file against this JSON Schema.",
      "type": "boolean"
    },
    "loglevel": {
      "type": "string"
    },
    "logdate": {
      "type": "boolean"
    }
  }
}
`
