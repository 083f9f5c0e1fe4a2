package raftpb

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeConfChange serializes a ConfChange for use as a log entry payload.
func EncodeConfChange(cc ConfChange) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cc); err != nil {
		return nil, fmt.Errorf("raftpb: encode conf change: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeConfChange parses a ConfChange log entry payload.
func DecodeConfChange(data []byte) (ConfChange, error) {
	var cc ConfChange
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cc); err != nil {
		return ConfChange{}, fmt.Errorf("raftpb: decode conf change: %w", err)
	}
	return cc, nil
}

// NormalPayloadKind distinguishes the two shapes a Normal entry's payload
// can take: a structured KV mutation (kv_put/kv_get's effect), or an
// opaque byte string submitted via replicate_entry.
type NormalPayloadKind uint8

const (
	NormalKV NormalPayloadKind = iota
	NormalOpaque
)

// NormalPayload is the envelope every EntryNormal entry's Payload decodes
// to, tagging which of the two shapes it carries.
type NormalPayload struct {
	Kind   NormalPayloadKind
	KV     KVCommand
	Opaque []byte
}

// EncodeNormalKV wraps a KVCommand in a NormalPayload envelope.
func EncodeNormalKV(cmd KVCommand) ([]byte, error) {
	return encodeGob(NormalPayload{Kind: NormalKV, KV: cmd})
}

// EncodeNormalOpaque wraps an opaque byte string in a NormalPayload
// envelope, for replicate_entry.
func EncodeNormalOpaque(data []byte) ([]byte, error) {
	return encodeGob(NormalPayload{Kind: NormalOpaque, Opaque: data})
}

// DecodeNormalPayload parses an EntryNormal entry's Payload.
func DecodeNormalPayload(data []byte) (NormalPayload, error) {
	var np NormalPayload
	if err := decodeGob(data, &np); err != nil {
		return NormalPayload{}, fmt.Errorf("raftpb: decode normal payload: %w", err)
	}
	return np, nil
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("raftpb: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
