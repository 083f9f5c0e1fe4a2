package control

import (
	"sync"
	"time"

	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/log"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
)

// commandDeadline bounds how long a control-surface call waits for its
// command to be dequeued and acted on by the worker before giving up
// with ErrCommandTimeout, mirroring the teacher's raft.Apply(data,
// 5*time.Second) deadline in manager.go.
const commandDeadline = 5 * time.Second

// ClusterStatus answers get_cluster_status().
type ClusterStatus struct {
	Term         uint64
	Leader       uint64
	Role         string
	Members      []NodeInfo
	CommitIndex  uint64
	AppliedIndex uint64
}

// NodeInfo is one row of get_nodes().
type NodeInfo struct {
	ID       uint64
	Host     string
	Port     uint16
	IsLeader bool
}

// Controller implements the control surface over a worker's queue and
// published state. Safe for concurrent use by multiple host sessions.
type Controller struct {
	queue     *queue.Queue
	published *queue.Published
	kv        *kv.StateMachine

	mu          sync.Mutex
	initialized bool
}

// New builds a Controller bound to a running worker's queue, published
// state, and state machine.
func New(q *queue.Queue, pub *queue.Published, sm *kv.StateMachine) *Controller {
	return &Controller{queue: q, published: pub, kv: sm}
}

// Init marks the controller initialized. Per §9's design note, calling
// it again after success is a benign no-op rather than an error — the
// caller-visible ErrAlreadyInitialized sentinel exists for callers that
// want to detect the repeat call themselves, but Init never returns it.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	return nil
}

// Initialized reports whether Init has been called.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// AddNode proposes a configuration change adding id at host:port.
func (c *Controller) AddNode(id uint64, host string, port uint16) error {
	cc := raftpb.ConfChange{
		Op:       raftpb.ConfChangeAdd,
		Node:     raftpb.NodeId(id),
		Endpoint: raftpb.Endpoint{Host: host, Port: port},
	}
	_, err := c.submit(&queue.Command{Kind: queue.CommandAddNode, ConfChange: cc})
	return err
}

// RemoveNode proposes a configuration change removing id.
func (c *Controller) RemoveNode(id uint64) error {
	cc := raftpb.ConfChange{Op: raftpb.ConfChangeRemove, Node: raftpb.NodeId(id)}
	_, err := c.submit(&queue.Command{Kind: queue.CommandRemoveNode, ConfChange: cc})
	return err
}

// IsLeader reports whether this node is currently Leader.
func (c *Controller) IsLeader() bool {
	return c.published.Load().Role == engine.Leader.String()
}

// GetTerm returns the current term.
func (c *Controller) GetTerm() uint64 {
	return uint64(c.published.Load().CurrentTerm)
}

// GetLeader returns the best-known leader id, or 0 if unknown.
func (c *Controller) GetLeader() uint64 {
	return uint64(c.published.Load().LeaderID)
}

// GetClusterStatus answers get_cluster_status().
func (c *Controller) GetClusterStatus() ClusterStatus {
	state := c.published.Load()
	return ClusterStatus{
		Term:         uint64(state.CurrentTerm),
		Leader:       uint64(state.LeaderID),
		Role:         state.Role,
		Members:      c.nodeInfos(state),
		CommitIndex:  uint64(state.CommitIndex),
		AppliedIndex: uint64(state.AppliedIndex),
	}
}

// GetNodes answers get_nodes().
func (c *Controller) GetNodes() []NodeInfo {
	return c.nodeInfos(c.published.Load())
}

func (c *Controller) nodeInfos(state *queue.State) []NodeInfo {
	infos := make([]NodeInfo, 0, len(state.Members))
	for _, m := range state.Members {
		infos = append(infos, NodeInfo{
			ID:       uint64(m.ID),
			Host:     m.Endpoint.Host,
			Port:     m.Endpoint.Port,
			IsLeader: m.ID == state.LeaderID,
		})
	}
	return infos
}

// ReplicateEntry proposes an opaque byte payload (§6 replicate_entry).
func (c *Controller) ReplicateEntry(payload []byte) error {
	encoded, err := raftpb.EncodeNormalOpaque(payload)
	if err != nil {
		return err
	}
	_, err = c.submit(&queue.Command{Kind: queue.CommandPropose, Payload: encoded})
	return err
}

// KVPut proposes a structured key/value mutation (§4.6).
func (c *Controller) KVPut(key string, value []byte) error {
	encoded, err := raftpb.EncodeNormalKV(raftpb.KVCommand{Op: raftpb.KVPut, Key: key, Value: value})
	if err != nil {
		return err
	}
	_, err = c.submit(&queue.Command{Kind: queue.CommandPropose, Payload: encoded})
	return err
}

// KVDelete proposes a structured key deletion, supplementing §6's
// explicit kv_put/kv_get pair with the delete half the KV state machine
// already supports (§4.6's KVCommand has both Put and Delete ops).
func (c *Controller) KVDelete(key string) error {
	encoded, err := raftpb.EncodeNormalKV(raftpb.KVCommand{Op: raftpb.KVDelete, Key: key})
	if err != nil {
		return err
	}
	_, err = c.submit(&queue.Command{Kind: queue.CommandPropose, Payload: encoded})
	return err
}

// KVGet answers kv_get(key) directly from local applied state — the
// table in §6 lists no error conditions for it, meaning it is served
// without round-tripping through consensus.
func (c *Controller) KVGet(key string) ([]byte, bool) {
	return c.kv.Get(key)
}

// SetDebug toggles runtime log verbosity (§6 set_debug).
func (c *Controller) SetDebug(enabled bool) error {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return nil
}

// GetWorkerState answers get_worker_state().
func (c *Controller) GetWorkerState() string {
	return c.published.Load().WorkerState.String()
}

// submit enqueues cmd and waits up to commandDeadline for the worker to
// act on it.
func (c *Controller) submit(cmd *queue.Command) (raftpb.Index, error) {
	done, err := c.queue.Submit(cmd)
	if err != nil {
		return 0, err
	}
	select {
	case res := <-done:
		return res.Index, res.Err
	case <-time.After(commandDeadline):
		return 0, errs.ErrCommandTimeout
	}
}
