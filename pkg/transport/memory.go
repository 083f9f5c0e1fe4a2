package transport

import (
	"sync"

	"github.com/cuemby/raftd/pkg/raftpb"
)

// MemoryTransport is an in-process Transport double: Send on one
// instance delivers directly onto another instance's inbox, with no
// network, goroutine, or serialization involved. Used by pkg/worker's
// tests to drive a multi-node cluster deterministically, per §9
// "Dynamic dispatch"'s test-double requirement.
type MemoryTransport struct {
	id       raftpb.NodeId
	registry *MemoryNetwork
	inbox    chan Inbound
}

// MemoryNetwork is the shared registry a group of MemoryTransports use
// to find each other.
type MemoryNetwork struct {
	mu    sync.Mutex
	nodes map[raftpb.NodeId]*MemoryTransport
}

// NewMemoryNetwork returns an empty registry.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{nodes: make(map[raftpb.NodeId]*MemoryTransport)}
}

// NewTransport registers and returns a MemoryTransport for id.
func (n *MemoryNetwork) NewTransport(id raftpb.NodeId) *MemoryTransport {
	t := &MemoryTransport{id: id, registry: n, inbox: make(chan Inbound, inboundBacklog)}
	n.mu.Lock()
	n.nodes[id] = t
	n.mu.Unlock()
	return t
}

func (t *MemoryTransport) Send(to raftpb.NodeId, msg raftpb.Message) {
	t.registry.mu.Lock()
	dest, ok := t.registry.nodes[to]
	t.registry.mu.Unlock()
	if !ok {
		return
	}
	select {
	case dest.inbox <- Inbound{From: t.id, Message: msg}:
	default:
		// Dropped: same "retried next tick" contract as TCPTransport.
	}
}

func (t *MemoryTransport) Recv() <-chan Inbound {
	return t.inbox
}

func (t *MemoryTransport) Close() error {
	t.registry.mu.Lock()
	delete(t.registry.nodes, t.id)
	t.registry.mu.Unlock()
	return nil
}

// Partition removes id from the registry without closing its channel,
// simulating a network partition: sends to id are silently dropped by
// everyone else, and id can still be reconnected with Heal.
func (n *MemoryNetwork) Partition(id raftpb.NodeId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

// Heal re-registers t, restoring delivery to it. (Sends from a
// partitioned transport are not blocked by Partition.)
func (n *MemoryNetwork) Heal(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[t.id] = t
}
