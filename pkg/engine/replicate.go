package engine

import "github.com/cuemby/raftd/pkg/raftpb"

// sendAppend sends an AppendEntries (or InstallSnapshot, if the peer has
// fallen behind the log's retained prefix) to peer id, per §4.1 "Leader
// replication".
func (e *Engine) sendAppend(id NodeID) {
	pr := e.progress[id]
	if pr == nil {
		return
	}

	if pr.NextIndex < e.log.firstIndex() {
		if e.log.snapshot == nil {
			// Nothing to install; fall through to a full-log append.
		} else {
			e.send(raftpb.Message{
				Type:     raftpb.MsgInstallSnapshot,
				To:       id,
				Snapshot: *e.log.snapshot,
			})
			return
		}
	}

	prevIndex := pr.NextIndex - 1
	prevTerm, ok := e.log.termAt(prevIndex)
	if !ok {
		// The entry backing prevIndex is not held locally; restart from
		// the first retained index on the next round.
		pr.NextIndex = e.log.firstIndex()
		return
	}

	entries := e.log.entriesFrom(pr.NextIndex)
	e.send(raftpb.Message{
		Type:         raftpb.MsgAppendEntries,
		To:           id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: e.log.committed,
	})
}

func (e *Engine) bcastAppend() {
	for id := range e.progress {
		e.sendAppend(id)
	}
}

func (e *Engine) sendHeartbeat(id NodeID) {
	pr := e.progress[id]
	prevIndex := raftpb.Index(0)
	if pr != nil {
		prevIndex = pr.NextIndex - 1
	}
	prevTerm, _ := e.log.termAt(prevIndex)
	e.send(raftpb.Message{
		Type:         raftpb.MsgAppendEntries,
		To:           id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		LeaderCommit: e.log.committed,
	})
}

func (e *Engine) bcastHeartbeat() {
	for id := range e.progress {
		e.sendHeartbeat(id)
	}
	e.ackReadsAgainstSelf()
}

// maybeAdvanceCommit implements §4.1's leader commit-index rule: the
// highest N such that N > commitIndex, log[N].term == currentTerm, and N
// is matched on a quorum (including self).
func (e *Engine) maybeAdvanceCommit() bool {
	matches := make([]raftpb.Index, 0, len(e.progress)+1)
	matches = append(matches, e.log.lastIndex()) // self always matches lastIndex
	for _, pr := range e.progress {
		matches = append(matches, pr.MatchIndex)
	}

	// Sort descending; the quorum-th value (1-based) is the highest index
	// matched on a majority.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j] > matches[i] {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	q := e.quorum()
	if q > len(matches) {
		return false
	}
	candidate := matches[q-1]

	advanced := e.log.maybeCommit(candidate, e.term)
	if advanced {
		e.markHardStateDirty()
		e.ackReadsUpTo(e.log.committed)
	}
	return advanced
}
