package engine

import (
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/raftpb"
)

// Propose appends a Normal entry to the leader's log and immediately
// begins replicating it. Returns the index the entry would occupy once
// committed, or ErrNotLeader if this node cannot accept proposals.
func (e *Engine) Propose(payload []byte) (raftpb.Index, error) {
	if e.role != Leader {
		return 0, e.notLeaderErr()
	}

	entry := raftpb.Entry{Index: e.log.lastIndex() + 1, Term: e.term, Kind: raftpb.EntryNormal, Payload: payload}
	e.log.append([]raftpb.Entry{entry})

	if e.quorum() == 1 {
		e.maybeAdvanceCommit()
	} else {
		e.bcastAppend()
	}
	return entry.Index, nil
}

// ProposeConfChange appends a ConfChange entry. Per §4.1, only one
// ConfChange may be un-applied at a time; a new one is rejected while one
// is outstanding.
func (e *Engine) ProposeConfChange(cc raftpb.ConfChange) (raftpb.Index, error) {
	if e.role != Leader {
		return 0, e.notLeaderErr()
	}
	if e.pendingConfChangeIndex != 0 {
		return 0, errs.ErrPendingConfChange
	}
	if cc.Op == raftpb.ConfChangeAdd {
		if _, exists := e.config.Nodes[cc.Node]; exists {
			return 0, errs.ErrDuplicateNode
		}
	} else {
		if _, exists := e.config.Nodes[cc.Node]; !exists {
			return 0, errs.ErrUnknownNode
		}
	}

	payload, err := raftpb.EncodeConfChange(cc)
	if err != nil {
		return 0, err
	}

	entry := raftpb.Entry{Index: e.log.lastIndex() + 1, Term: e.term, Kind: raftpb.EntryConfChange, Payload: payload}
	e.log.append([]raftpb.Entry{entry})
	e.pendingConfChangeIndex = entry.Index

	if e.quorum() == 1 {
		e.maybeAdvanceCommit()
	} else {
		e.bcastAppend()
	}
	return entry.Index, nil
}

func (e *Engine) notLeaderErr() error {
	if e.leader != 0 {
		return errs.NotLeaderWithHint(uint64(e.leader))
	}
	return errs.ErrNotLeader
}

// ApplyConfChangeEffect is called by the worker, for every applied
// ConfChange entry (in log-order, as returned by Output.EntriesToApply),
// to mutate the engine's active configuration and peer progress. The
// change takes effect on apply, not on commit, per §4.1.
func (e *Engine) ApplyConfChangeEffect(index raftpb.Index, cc raftpb.ConfChange) {
	switch cc.Op {
	case raftpb.ConfChangeAdd:
		e.config.Nodes[cc.Node] = cc.Endpoint
		if e.role == Leader && cc.Node != e.id {
			e.progress[cc.Node] = &Progress{NextIndex: e.log.lastIndex() + 1, MatchIndex: 0}
		}
	case raftpb.ConfChangeRemove:
		delete(e.config.Nodes, cc.Node)
		if e.role == Leader {
			delete(e.progress, cc.Node)
		}
		if cc.Node == e.id {
			// Removal of the leader causes it to step down once applied.
			e.becomeFollower(e.term, 0)
		}
	}

	if index == e.pendingConfChangeIndex {
		e.pendingConfChangeIndex = 0
	}
}

// TakeSnapshot produces a snapshot covering everything applied so far,
// given the applied state machine's serialized blob. The worker decides
// when to call this (§4.1: applied_index - FirstIndex >= snapshot_threshold).
func (e *Engine) TakeSnapshot(stateBlob []byte) (raftpb.Snapshot, bool) {
	applied := e.log.applied
	if applied == 0 {
		return raftpb.Snapshot{}, false
	}
	term, ok := e.log.termAt(applied)
	if !ok {
		return raftpb.Snapshot{}, false
	}
	snap := raftpb.Snapshot{
		IncludedIndex: applied,
		IncludedTerm:  term,
		Configuration: e.config.Clone(),
		StateBlob:     stateBlob,
	}
	return snap, true
}

// ShouldSnapshot reports whether the log has grown enough past the last
// snapshot to warrant compaction, per the configured threshold.
func (e *Engine) ShouldSnapshot(threshold int) bool {
	return int(e.log.applied-e.log.firstIndex()) >= threshold
}
