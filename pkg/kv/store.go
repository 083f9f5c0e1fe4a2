package kv

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/cuemby/raftd/pkg/raftpb"
)

// StateMachine is the applied key/value store. All Normal log entries
// decode to a raftpb.NormalPayload; StateMachine.Apply dispatches on its
// Kind. Opaque payloads (submitted via replicate_entry, §6) carry no KV
// semantics — they still advance the applied index but leave the map
// untouched, since their only contract is "replicated and applied in
// order", not "interpreted".
type StateMachine struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty StateMachine.
func New() *StateMachine {
	return &StateMachine{data: make(map[string][]byte)}
}

// Apply interprets one committed Normal entry's payload. ConfChange and
// NoOp entries never reach here; the worker only calls Apply for
// EntryNormal entries.
func (s *StateMachine) Apply(payload []byte) error {
	np, err := raftpb.DecodeNormalPayload(payload)
	if err != nil {
		return fmt.Errorf("kv: apply: %w", err)
	}

	switch np.Kind {
	case raftpb.NormalKV:
		s.applyKV(np.KV)
	case raftpb.NormalOpaque:
		// Nothing to interpret; replicate_entry's only guarantee is
		// ordered delivery to whatever watches applied_index.
	default:
		return fmt.Errorf("kv: apply: unknown normal payload kind %d", np.Kind)
	}
	return nil
}

func (s *StateMachine) applyKV(cmd raftpb.KVCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Op {
	case raftpb.KVPut:
		s.data[cmd.Key] = cmd.Value
	case raftpb.KVDelete:
		delete(s.data, cmd.Key)
	}
}

// Get reads a key directly from applied state. Callers needing
// linearizable reads must first complete a read_index round (§4.6) and
// confirm applied_index has reached it before calling Get.
func (s *StateMachine) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// stateBlob is the wire shape of a snapshot's StateBlob: a gob-encoded
// copy of the map, independent of raftpb so the kv package owns its own
// on-disk representation.
type stateBlob struct {
	Data map[string][]byte
}

// Snapshot serializes the current map for inclusion in a raftpb.Snapshot.
func (s *StateMachine) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		cp[k] = v
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stateBlob{Data: cp}); err != nil {
		return nil, fmt.Errorf("kv: snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the current map with the contents of a snapshot's
// StateBlob, as produced by Snapshot. Called once at startup when
// recovering from a persisted snapshot, and whenever InstallSnapshot
// lands a newer snapshot from the leader.
func (s *StateMachine) Restore(blob []byte) error {
	var sb stateBlob
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&sb); err != nil {
		return fmt.Errorf("kv: restore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sb.Data == nil {
		sb.Data = make(map[string][]byte)
	}
	s.data = sb.Data
	return nil
}

// Len reports the number of keys currently held, for status reporting.
func (s *StateMachine) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
