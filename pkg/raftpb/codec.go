package raftpb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// EncodeMessage serializes a Message to a self-describing byte slice.
func EncodeMessage(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("raftpb: encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMessage parses a byte slice produced by EncodeMessage.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("raftpb: decode message: %w", err)
	}
	return m, nil
}

// EncodeHandshake serializes a Handshake preamble.
func EncodeHandshake(h Handshake) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, fmt.Errorf("raftpb: encode handshake: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeHandshake parses a byte slice produced by EncodeHandshake.
func DecodeHandshake(data []byte) (Handshake, error) {
	var h Handshake
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return Handshake{}, fmt.Errorf("raftpb: decode handshake: %w", err)
	}
	return h, nil
}

// MaxFrameSize bounds a single framed payload to guard against a corrupt
// length prefix driving an unbounded allocation.
const MaxFrameSize = 64 << 20

// WriteFrame writes a 4-byte big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("raftpb: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("raftpb: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("raftpb: frame size %d exceeds maximum %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("raftpb: read frame payload: %w", err)
	}
	return payload, nil
}
