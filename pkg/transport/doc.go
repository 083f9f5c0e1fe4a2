// Package transport implements the peer-to-peer byte transport (§4.3):
// one bidirectional channel of communication per ordered pair of peers,
// realized as two independent TCP connections (one dialed by each side)
// carrying length-prefixed, gob-encoded raftpb.Message frames.
//
// The worker never touches a net.Conn directly. It talks to Transport
// through the narrow capability set §9 "Dynamic dispatch" calls for:
// Send(to, msg) and a single Recv() channel multiplexing every peer's
// inbound frames, tagged with who sent them.
package transport
