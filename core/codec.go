package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// canonicalForm is the hash-input shape of an Event, field order fixed at
// type, payload, prev, author, nonce, timestamp. id and sig never appear
// here: I1 hashes everything else. encoding/json preserves Go struct field
// order, which is the only guarantee this needs.
type canonicalForm struct {
	Type      string          `json:"type"`
	Payload   canonicalPayload `json:"payload"`
	Prev      []string        `json:"prev"`
	Author    string          `json:"author"`
	Nonce     uint64          `json:"nonce"`
	Timestamp string          `json:"timestamp"`
}

// canonicalPayload mirrors dag.rs's #[serde(tag="type", content="data")]
// nesting: the payload is itself a tagged object, one level in.
type canonicalPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const canonicalTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// canonicalBytes produces the deterministic byte encoding an Event hashes
// over. prev is always encoded as [] rather than null even when empty.
func canonicalBytes(typ string, payloadData json.RawMessage, prev []string, author string, nonce uint64, ts time.Time) ([]byte, error) {
	if prev == nil {
		prev = []string{}
	}
	form := canonicalForm{
		Type: typ,
		Payload: canonicalPayload{
			Type: typ,
			Data: payloadData,
		},
		Prev:      prev,
		Author:    author,
		Nonce:     nonce,
		Timestamp: ts.UTC().Format(canonicalTimeLayout),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(form); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so the
	// canonical form has one textual representation.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// contentID hashes canonical bytes into a lowercase-hex SHA-256 digest.
func contentID(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
