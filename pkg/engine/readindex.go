package engine

import "github.com/cuemby/raftd/pkg/raftpb"

// RequestReadIndex implements the read_index protocol (§4.6, §9 Open
// Questions): the leader records the current commit index, broadcasts a
// heartbeat, and once a majority (including itself) has acknowledged
// being caught up to that round, the read may be serviced at the
// recorded index with linearizable semantics. Returns false if this node
// is not the leader.
func (e *Engine) RequestReadIndex(requestID string) bool {
	if e.role != Leader {
		return false
	}

	e.pendingReads = append(e.pendingReads, pendingRead{
		requestID: requestID,
		index:     e.log.committed,
		acks:      map[NodeID]bool{e.id: true},
	})

	if e.quorum() == 1 {
		e.settleReads()
		return true
	}

	e.bcastHeartbeat()
	e.settleReads()
	return true
}

// ackReadsAgainstSelf is called whenever the leader broadcasts a
// heartbeat round, so the leader's own acknowledgment is accounted for.
func (e *Engine) ackReadsAgainstSelf() {
	for i := range e.pendingReads {
		e.pendingReads[i].acks[e.id] = true
	}
	e.settleReads()
}

// ackRead records that peer id has acknowledged the leader's current
// term via a successful AppendEntries/heartbeat response.
func (e *Engine) ackRead(id NodeID) {
	for i := range e.pendingReads {
		e.pendingReads[i].acks[id] = true
	}
	e.settleReads()
}

// settleReads moves every pending read that has reached quorum acks into
// the output buffer, without mutating pendingReads while iterating it.
func (e *Engine) settleReads() {
	if len(e.pendingReads) == 0 {
		return
	}
	q := e.quorum()
	remaining := e.pendingReads[:0]
	for _, pr := range e.pendingReads {
		if len(pr.acks) >= q {
			e.out.ReadResults = append(e.out.ReadResults, ReadIndexResult{RequestID: pr.requestID, Index: pr.index})
			continue
		}
		remaining = append(remaining, pr)
	}
	e.pendingReads = remaining
}

// ackReadsUpTo exists as an explicit hook at the call site in
// maybeAdvanceCommit documenting that commit advancement alone does not
// complete a pending read — completion is ack-driven (settleReads).
func (e *Engine) ackReadsUpTo(commitIndex raftpb.Index) {
	_ = commitIndex
}
