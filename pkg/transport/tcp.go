package transport

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/rs/zerolog"
)

const (
	dialTimeout     = 5 * time.Second
	minRedialDelay  = 100 * time.Millisecond
	maxRedialDelay  = 10 * time.Second
	outboundBacklog = 256
	inboundBacklog  = 256
)

// PeerConfig is what the transport needs to know about one peer to
// dial it and to recognize its incoming handshake.
type PeerConfig struct {
	ID       raftpb.NodeId
	Endpoint raftpb.Endpoint
}

// TCPTransport is the production Transport: one dial goroutine per
// configured peer (carrying this node's outbound sends to that peer)
// and one accept loop spawning a reader goroutine per inbound
// connection (carrying that peer's sends to us). Reconnects silently;
// no message replay is attempted, per §4.3.
type TCPTransport struct {
	selfID      raftpb.NodeId
	clusterName string
	listenAddr  string

	logger zerolog.Logger

	mu       sync.Mutex
	outbox   map[raftpb.NodeId]chan raftpb.Message
	closing  bool
	closeCh  chan struct{}
	listener net.Listener

	inbox chan Inbound

	wg sync.WaitGroup
}

// New constructs a TCPTransport, starts the accept loop, and starts one
// dial loop per peer in peers. It does not block.
func New(selfID raftpb.NodeId, clusterName, listenAddr string, peers []PeerConfig, logger zerolog.Logger) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	t := &TCPTransport{
		selfID:      selfID,
		clusterName: clusterName,
		listenAddr:  listenAddr,
		logger:      logger.With().Str("component", "transport").Logger(),
		outbox:      make(map[raftpb.NodeId]chan raftpb.Message),
		closeCh:     make(chan struct{}),
		listener:    ln,
		inbox:       make(chan Inbound, inboundBacklog),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	for _, p := range peers {
		if p.ID == selfID {
			continue
		}
		ch := make(chan raftpb.Message, outboundBacklog)
		t.outbox[p.ID] = ch
		t.wg.Add(1)
		go t.dialLoop(p, ch)
	}

	return t, nil
}

func (t *TCPTransport) Send(to raftpb.NodeId, msg raftpb.Message) {
	t.mu.Lock()
	ch, ok := t.outbox[to]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Outbound backlog full: drop, per §4.1's "send failure is
		// retried on the next tick, no retry counter" — the next
		// tick's heartbeat/AppendEntries naturally supersedes this one.
		t.logger.Warn().Uint64("to", uint64(to)).Msg("outbound backlog full, dropping message")
	}
}

func (t *TCPTransport) Recv() <-chan Inbound {
	return t.inbox
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.mu.Unlock()

	close(t.closeCh)
	err := t.listener.Close()
	t.wg.Wait()
	return err
}

func (t *TCPTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// dialLoop keeps exactly one outbound connection to peer alive,
// redialing with exponential backoff on failure. It owns peer's
// outbound channel: every message enqueued via Send(peer.ID, ...)
// eventually gets written here, in order, or dropped if the connection
// is currently down.
func (t *TCPTransport) dialLoop(peer PeerConfig, out chan raftpb.Message) {
	defer t.wg.Done()
	delay := minRedialDelay

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		conn, err := (&net.Dialer{Timeout: dialTimeout}).Dial("tcp", net.JoinHostPort(peer.Endpoint.Host, strconv.Itoa(int(peer.Endpoint.Port))))
		if err != nil {
			t.logger.Debug().Uint64("peer", uint64(peer.ID)).Err(err).Msg("dial failed, retrying")
			if !t.sleepOrClose(delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = minRedialDelay

		if err := raftpb.WriteFrame(conn, mustEncodeHandshake(t.selfID, t.clusterName)); err != nil {
			conn.Close()
			continue
		}

		t.writeLoop(conn, out)
		conn.Close()
	}
}

// writeLoop drains out onto conn until the connection breaks or the
// transport is closing.
func (t *TCPTransport) writeLoop(conn net.Conn, out chan raftpb.Message) {
	for {
		select {
		case <-t.closeCh:
			return
		case msg := <-out:
			payload, err := raftpb.EncodeMessage(msg)
			if err != nil {
				continue
			}
			if err := raftpb.WriteFrame(conn, payload); err != nil {
				return
			}
		}
	}
}

// acceptLoop accepts inbound connections and spawns a reader for each,
// one per configured peer that chooses to dial us.
func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.isClosing() {
				return
			}
			t.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

// readLoop validates the handshake, then forwards every decoded frame
// to the shared inbox tagged with the sender's node ID. On parse error
// or EOF the connection is closed; the peer's dialLoop will reconnect.
func (t *TCPTransport) readLoop(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	frame, err := raftpb.ReadFrame(conn)
	if err != nil {
		return
	}
	hs, err := raftpb.DecodeHandshake(frame)
	if err != nil {
		return
	}
	if hs.ClusterName != t.clusterName {
		t.logger.Warn().Str("peer_cluster", hs.ClusterName).Msg("rejecting connection: cluster_name mismatch")
		return
	}

	for {
		frame, err := raftpb.ReadFrame(conn)
		if err != nil {
			return
		}
		msg, err := raftpb.DecodeMessage(frame)
		if err != nil {
			return
		}
		select {
		case t.inbox <- Inbound{From: hs.SelfNodeID, Message: msg}:
		case <-t.closeCh:
			return
		}
	}
}

func (t *TCPTransport) sleepOrClose(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-t.closeCh:
		return false
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxRedialDelay {
		return maxRedialDelay
	}
	return d
}

func mustEncodeHandshake(selfID raftpb.NodeId, clusterName string) []byte {
	b, err := raftpb.EncodeHandshake(raftpb.Handshake{ClusterName: clusterName, SelfNodeID: selfID})
	if err != nil {
		panic(errors.New("transport: encoding a Handshake must never fail"))
	}
	return b
}

