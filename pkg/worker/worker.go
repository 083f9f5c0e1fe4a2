package worker

import (
	"sync"
	"time"

	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/metrics"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/cuemby/raftd/pkg/storage"
	"github.com/cuemby/raftd/pkg/transport"
	"github.com/rs/zerolog"
)

// Config configures a Worker's cadence and snapshotting policy.
type Config struct {
	TickInterval      time.Duration
	SnapshotThreshold int
	Logger            zerolog.Logger
}

// Worker is the single cooperative task that owns the engine, per §4.4
// and §5's scheduling model. Every exported method except Stop is meant
// to be called from outside the worker's own goroutine only before
// Start or after Stop returns.
type Worker struct {
	engine    *engine.Engine
	store     storage.Store
	transport transport.Transport
	queue     *queue.Queue
	published *queue.Published
	kv        *kv.StateMachine
	cfg       Config
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// pendingReads holds read_index requests awaiting quorum
	// confirmation; only ever touched from the worker's own goroutine.
	pendingReads map[string]*queue.Command

	// pendingCommits holds Propose/AddNode/RemoveNode commands keyed by
	// the log index Propose/ProposeConfChange assigned them, awaiting
	// commit (§6: "ok once committed"). Only ever touched from the
	// worker's own goroutine.
	pendingCommits map[raftpb.Index]*queue.Command
}

// New constructs a Worker from already-initialized components. Use
// Recover to build the engine and state machine from persisted storage
// before calling New.
func New(eng *engine.Engine, store storage.Store, tr transport.Transport, q *queue.Queue, pub *queue.Published, sm *kv.StateMachine, cfg Config) *Worker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.SnapshotThreshold <= 0 {
		cfg.SnapshotThreshold = 10000
	}
	return &Worker{
		engine:         eng,
		store:          store,
		transport:      tr,
		queue:          q,
		published:      pub,
		kv:             sm,
		cfg:            cfg,
		logger:         cfg.Logger.With().Str("component", "worker").Logger(),
		pendingReads:   make(map[string]*queue.Command),
		pendingCommits: make(map[raftpb.Index]*queue.Command),
	}
}

// Recover loads persisted state and the last snapshot's KV contents,
// constructs the engine, and replays any entries that were committed
// but not yet applied before a prior crash (§4.4's apply-after-send
// ordering means a crash between send and apply is exactly this case;
// §8 scenario 6 depends on this replay happening correctly).
func Recover(engineCfg engine.Config, store storage.Store, initialConfig raftpb.Configuration, sm *kv.StateMachine, logger zerolog.Logger) (*engine.Engine, error) {
	loaded, err := store.LoadAll()
	if err != nil {
		return nil, err
	}

	if loaded.Snapshot != nil {
		if err := sm.Restore(loaded.Snapshot.StateBlob); err != nil {
			return nil, err
		}
	}

	eng := engine.New(engineCfg, loaded.HardState, loaded.Snapshot, loaded.Entries, initialConfig)

	// Entries committed-but-unapplied at crash time surface immediately
	// on the first Drain, since restoreFrom seeds applied from the
	// snapshot and committed from HardState. Apply them before serving
	// any traffic so kv and configuration reflect everything durable.
	applyReadyEntries(eng, sm, logger)

	return eng, nil
}

func applyReadyEntries(eng *engine.Engine, sm *kv.StateMachine, logger zerolog.Logger) {
	out := eng.Drain()
	for _, entry := range out.EntriesToApply {
		applyEntry(eng, sm, entry, logger)
	}
	if len(out.EntriesToApply) > 0 {
		eng.AckApplied(out.EntriesToApply[len(out.EntriesToApply)-1].Index)
	}
}

func applyEntry(eng *engine.Engine, sm *kv.StateMachine, entry raftpb.Entry, logger zerolog.Logger) {
	switch entry.Kind {
	case raftpb.EntryNormal:
		if err := sm.Apply(entry.Payload); err != nil {
			logger.Error().Err(err).Uint64("index", uint64(entry.Index)).Msg("failed to apply normal entry")
		}
	case raftpb.EntryConfChange:
		cc, err := raftpb.DecodeConfChange(entry.Payload)
		if err != nil {
			logger.Error().Err(err).Uint64("index", uint64(entry.Index)).Msg("failed to decode conf change entry")
			return
		}
		eng.ApplyConfChangeEffect(entry.Index, cc)
	case raftpb.EntryNoOp:
		// Nothing to apply; its only purpose was to anchor commit
		// advancement into the leader's term.
	}
}

// Start launches the worker's tick loop in its own goroutine. Safe to
// call once.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run()
}

// Stop requests cooperative shutdown: the current tick's persistence
// phase is allowed to finish, remaining queued commands are failed
// with Shutdown, transport and storage are closed, and the worker
// goroutine exits. Blocks until shutdown completes.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)

	w.publish(queueStateWorker(queue.WorkerRunning))
	w.logger.Info().Msg("worker started")

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.stopCh:
			w.shutdown()
			return
		}
	}
}

func (w *Worker) shutdown() {
	w.logger.Info().Msg("worker shutting down")
	w.publish(queueStateWorker(queue.WorkerShuttingDown))
	w.queue.FailAll(errs.ErrShutdown)
	w.failParked(errs.ErrShutdown)
	w.transport.Close()
	w.store.Close()
	w.publish(queueStateWorker(queue.WorkerStopped))
	w.logger.Info().Msg("worker stopped")
}

// failParked rejects every command parked awaiting a read_index round
// or a commit, since the worker is about to stop observing either.
func (w *Worker) failParked(err error) {
	for id, cmd := range w.pendingReads {
		delete(w.pendingReads, id)
		w.queue.Complete(cmd, queue.Result{Err: err})
	}
	for idx, cmd := range w.pendingCommits {
		delete(w.pendingCommits, idx)
		w.queue.Complete(cmd, queue.Result{Err: err})
	}
}

// tick performs exactly one iteration of §4.4's six steps.
func (w *Worker) tick() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

	w.drainInbound()
	w.drainCommands()
	w.engine.Tick()

	out := w.engine.Drain()
	w.completeReads(out.ReadResults)
	if w.engine.Role() != engine.Leader {
		w.failPendingCommits()
	}
	if out.SnapshotToPersist == nil && len(out.EntriesToPersist) == 0 && !out.HardStateChanged && len(out.Messages) == 0 && len(out.EntriesToApply) == 0 {
		return
	}

	w.persist(out)
	w.send(out.Messages)
	w.apply(out.EntriesToApply)
	w.completeCommits()
	w.maybeSnapshot()
	w.publish(nil)
}

func (w *Worker) drainInbound() {
	for {
		select {
		case in := <-w.transport.Recv():
			w.engine.Step(in.Message)
		default:
			return
		}
	}
}

func (w *Worker) drainCommands() {
	for _, cmd := range w.queue.Drain() {
		if cmd.Kind == queue.CommandReadIndex {
			w.startReadIndex(cmd)
			continue
		}
		w.dispatch(cmd)
	}
}

// dispatch hands a command to the engine. Propose/AddNode/RemoveNode are
// never completed here: §6 requires "ok once committed", and Propose/
// ProposeConfChange only append to the leader's in-memory unstable log
// (they return the index the entry would occupy once committed, per
// their own doc comments). On success the command is parked in
// pendingCommits until completeCommits observes its index has been
// persisted as committed, matching the read_index completion shape.
func (w *Worker) dispatch(cmd *queue.Command) {
	var idx raftpb.Index
	var err error

	switch cmd.Kind {
	case queue.CommandPropose:
		idx, err = w.engine.Propose(cmd.Payload)
	case queue.CommandAddNode, queue.CommandRemoveNode:
		idx, err = w.engine.ProposeConfChange(cmd.ConfChange)
	case queue.CommandSnapshot:
		w.maybeSnapshot()
		w.queue.Complete(cmd, queue.Result{Index: w.engine.AppliedIndex()})
		return
	default:
		return
	}

	if err != nil {
		w.queue.Complete(cmd, queue.Result{Err: err})
		return
	}
	w.pendingCommits[idx] = cmd
}

// completeCommits settles every pending Propose/AddNode/RemoveNode
// command whose target index has reached the engine's commit index.
// Called only after persist has durably written that commit index
// (§4.1/§7: never report success past the unpersisted point).
func (w *Worker) completeCommits() {
	committed := w.engine.CommitIndex()
	for idx, cmd := range w.pendingCommits {
		if idx > committed {
			continue
		}
		delete(w.pendingCommits, idx)
		w.queue.Complete(cmd, queue.Result{Index: idx})
	}
}

// failPendingCommits rejects every still-uncommitted pending command
// once this node is no longer leader: an entry proposed by a leader that
// loses leadership before it commits may be overwritten by whichever
// node becomes leader next, and must never be reported as committed.
func (w *Worker) failPendingCommits() {
	if len(w.pendingCommits) == 0 {
		return
	}
	err := w.notLeaderErr()
	for idx, cmd := range w.pendingCommits {
		delete(w.pendingCommits, idx)
		w.queue.Complete(cmd, queue.Result{Err: err})
	}
}

// startReadIndex kicks off a read_index round (§4.6). The command is
// not completed immediately: it is parked in pendingReads until a later
// tick's Drain reports the round settled, which may take several ticks
// while a quorum of heartbeat acks comes in.
func (w *Worker) startReadIndex(cmd *queue.Command) {
	if !w.engine.RequestReadIndex(cmd.ID) {
		w.queue.Complete(cmd, queue.Result{Err: w.notLeaderErr()})
		return
	}
	w.pendingReads[cmd.ID] = cmd
}

func (w *Worker) completeReads(results []engine.ReadIndexResult) {
	for _, r := range results {
		cmd, ok := w.pendingReads[r.RequestID]
		if !ok {
			continue
		}
		delete(w.pendingReads, r.RequestID)
		w.queue.Complete(cmd, queue.Result{Index: r.Index})
	}
}

func (w *Worker) notLeaderErr() error {
	if leader := w.engine.Leader(); leader != 0 {
		return errs.NotLeaderWithHint(uint64(leader))
	}
	return errs.ErrNotLeader
}

// persist implements §4.4 step 5's strict ordering: snapshot, then log,
// then hard state. Disk failures here are fatal to the operation per
// §4.1 "Failure semantics" — this implementation logs at Fatal level,
// which exits the process, rather than silently advancing volatile
// state past an unpersisted point.
func (w *Worker) persist(out engine.Output) {
	if out.SnapshotToPersist != nil {
		if err := w.store.SaveSnapshot(*out.SnapshotToPersist); err != nil {
			w.logger.Fatal().Err(err).Msg("failed to persist snapshot")
		}
		w.engine.AckSnapshotPersisted(*out.SnapshotToPersist)
		if err := w.store.Compact(out.SnapshotToPersist.IncludedIndex); err != nil {
			w.logger.Error().Err(err).Msg("failed to compact log after snapshot")
		}
	}

	if len(out.EntriesToPersist) > 0 {
		if err := w.store.Append(out.PersistFromIndex, out.EntriesToPersist); err != nil {
			w.logger.Fatal().Err(err).Msg("failed to persist log entries")
		}
	}

	if out.HardStateChanged {
		if err := w.store.SaveHardState(out.HardState); err != nil {
			w.logger.Fatal().Err(err).Msg("failed to persist hard state")
		}
	}

	if len(out.EntriesToPersist) > 0 || out.HardStateChanged {
		w.engine.AckPersisted(w.engine.LastIndex(), out.HardState)
	}
}

func (w *Worker) send(messages []raftpb.Message) {
	for _, m := range messages {
		w.transport.Send(m.To, m)
	}
}

func (w *Worker) apply(entries []raftpb.Entry) {
	if len(entries) == 0 {
		return
	}
	timer := metrics.NewTimer()
	for _, entry := range entries {
		applyEntry(w.engine, w.kv, entry, w.logger)
	}
	timer.ObserveDuration(metrics.ApplyDuration)
	w.engine.AckApplied(entries[len(entries)-1].Index)
}

// maybeSnapshot takes and persists a snapshot once the log has grown
// past the configured threshold (§4.1's threshold-based compaction).
func (w *Worker) maybeSnapshot() {
	if !w.engine.ShouldSnapshot(w.cfg.SnapshotThreshold) {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotDuration)

	blob, err := w.kv.Snapshot()
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to snapshot state machine")
		return
	}
	snap, ok := w.engine.TakeSnapshot(blob)
	if !ok {
		return
	}
	if err := w.store.SaveSnapshot(snap); err != nil {
		w.logger.Error().Err(err).Msg("failed to persist proactive snapshot")
		return
	}
	w.engine.AckSnapshotPersisted(snap)
	if err := w.store.Compact(snap.IncludedIndex); err != nil {
		w.logger.Error().Err(err).Msg("failed to compact log after proactive snapshot")
	}
}

// publish republishes shared state, optionally overriding WorkerState
// (used for the Starting/ShuttingDown/Stopped transitions that aren't
// tied to an engine tick).
func (w *Worker) publish(override *queue.WorkerState) {
	cfg := w.engine.Configuration()
	members := make([]queue.Member, 0, len(cfg.Nodes))
	for id, ep := range cfg.Nodes {
		members = append(members, queue.Member{ID: id, Endpoint: ep})
	}

	state := &queue.State{
		Role:         w.engine.Role().String(),
		CurrentTerm:  w.engine.Term(),
		LeaderID:     w.engine.Leader(),
		CommitIndex:  w.engine.CommitIndex(),
		AppliedIndex: w.engine.AppliedIndex(),
		LastIndex:    w.engine.LastIndex(),
		Members:      members,
		WorkerState:  queue.WorkerRunning,
	}
	if override != nil {
		state.WorkerState = *override
	} else if prev := w.published.Load(); prev != nil {
		state.WorkerState = prev.WorkerState
	}

	w.published.Store(state)

	metrics.Role.Set(float64(w.engine.Role()))
	metrics.Term.Set(float64(state.CurrentTerm))
	metrics.CommitIndex.Set(float64(state.CommitIndex))
	metrics.AppliedIndex.Set(float64(state.AppliedIndex))
	metrics.LastIndex.Set(float64(state.LastIndex))
	metrics.PeersTotal.Set(float64(len(members)))
	metrics.QueueDepth.Set(float64(w.queue.Depth()))
}

func queueStateWorker(s queue.WorkerState) *queue.WorkerState {
	return &s
}
