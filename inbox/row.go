// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package inbox implements at-most-once delivery deduplication: a 64-bit
// fingerprint over a user-selected dedup key, checked and inserted inside
// the same DB transaction as the application's own work, plus a periodic
// cleanup of rows past their retention window.
package inbox

import (
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Row is the durable dedup record persisted to the inbox_messages table: a
// fingerprint primary key plus a receipt timestamp used only for cleanup.
type Row struct {
	HashID     uint64
	ReceivedAt time.Time
}

// Fingerprint computes the 64-bit dedup fingerprint for a key value: a
// type-salted xxHash64 over the key's JSON encoding. typeSalt is the
// declared type's fully-qualified name, prepended ahead of the key so the
// same key value from two different message types never collides.
func Fingerprint(typeSalt string, key any) (uint64, error) {
	keyBytes, err := json.Marshal(key)
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	_, _ = h.WriteString(typeSalt)
	_, _ = h.Write(keyBytes)
	return h.Sum64(), nil
}
