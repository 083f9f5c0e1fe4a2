package transport

import "github.com/cuemby/raftd/pkg/raftpb"

// Inbound is one message received from a peer, tagged with its sender
// so the worker can route responses without the transport exposing
// connections.
type Inbound struct {
	From    raftpb.NodeId
	Message raftpb.Message
}

// Transport is the narrow capability set the engine's surrounding
// worker uses to move messages between peers (§9 "Dynamic dispatch"):
// send a message to a node, and receive a stream of messages from
// whoever sent them. Test doubles implement the same interface in
// place of real sockets.
type Transport interface {
	// Send enqueues msg for delivery to the given peer. It never
	// blocks and never returns an error: per §4.1's failure semantics,
	// a transport send failure is retried on the worker's next tick,
	// not reported or counted — a full or absent connection simply
	// drops the message.
	Send(to raftpb.NodeId, msg raftpb.Message)

	// Recv returns the channel of messages received from any peer.
	Recv() <-chan Inbound

	// Close tears down every connection and stops all background
	// goroutines. Safe to call once during worker shutdown.
	Close() error
}
