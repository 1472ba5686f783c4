// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broadcaster

import (
	"encoding/base64"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/plc-bridge/bridge/pkg/log"
)

const msgpackPrefix = "MSGPACK:"

// encodeBatch implements §4.4.2 of the design notes' encoding rule: MessagePack over
// the flat tag_name->value map, wrapped as text "MSGPACK:" + base64(bytes);
// JSON is the fallback if msgpack encoding fails for any reason.
func encodeBatch(batch map[string]string) []byte {
	packed, err := msgpack.Marshal(batch)
	if err == nil {
		return []byte(msgpackPrefix + base64.StdEncoding.EncodeToString(packed))
	}

	log.Warnf("broadcaster: msgpack encode failed, falling back to JSON: %v", err)
	j, jerr := json.Marshal(batch)
	if jerr != nil {
		log.Errorf("broadcaster: JSON fallback encode also failed: %v", jerr)
		return nil
	}
	return j
}
