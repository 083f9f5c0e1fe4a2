package engine

import "github.com/cuemby/raftd/pkg/raftpb"

// becomeFollower transitions to Follower for term, clearing vote iff the
// term actually advanced (callers that merely learn of a current-term
// leader pass the unchanged term).
func (e *Engine) becomeFollower(term raftpb.Term, leader NodeID) {
	if term > e.term {
		e.term = term
		e.vote = 0
	}
	e.role = Follower
	e.leader = leader
	e.electionElapsed = 0
	e.resetRandomizedTimeout()
	e.markHardStateDirty()
	e.failPendingReads()
}

func (e *Engine) becomeCandidate() {
	e.term++
	e.role = Candidate
	e.vote = e.id
	e.leader = 0
	e.votes = map[NodeID]bool{e.id: true}
	e.electionElapsed = 0
	e.resetRandomizedTimeout()
	e.markHardStateDirty()
}

func (e *Engine) becomeLeader() {
	e.role = Leader
	e.leader = e.id
	e.heartbeatElapsed = 0

	e.progress = make(map[NodeID]*Progress)
	for id := range e.config.Nodes {
		if id == e.id {
			continue
		}
		e.progress[id] = &Progress{NextIndex: e.log.lastIndex() + 1, MatchIndex: 0}
	}

	// Immediately append a NoOp entry in the new term (§4.1 "Becoming
	// leader"), so commit index can advance into this term.
	noop := raftpb.Entry{Index: e.log.lastIndex() + 1, Term: e.term, Kind: raftpb.EntryNoOp}
	e.log.append([]raftpb.Entry{noop})

	if len(e.progress) == 0 {
		// Single-node cluster: the NoOp is immediately committed.
		e.maybeAdvanceCommit()
	} else {
		e.bcastAppend()
	}
}

// campaign starts an election: increments term, votes for self, and
// requests votes from every peer. A single-node cluster wins immediately.
func (e *Engine) campaign() {
	e.becomeCandidate()

	if e.quorum() == 1 {
		e.becomeLeader()
		return
	}

	lastIdx := e.log.lastIndex()
	lastTerm := e.log.lastTerm()
	for id := range e.config.Nodes {
		if id == e.id {
			continue
		}
		e.send(raftpb.Message{
			Type:         raftpb.MsgRequestVote,
			To:           id,
			LastLogIndex: lastIdx,
			LastLogTerm:  lastTerm,
		})
	}
}

// poll records a vote and reports whether a decision (win or lose) has
// been reached.
func (e *Engine) poll(id NodeID, granted bool) (won bool, lost bool) {
	if e.votes == nil {
		e.votes = make(map[NodeID]bool)
	}
	if _, already := e.votes[id]; !already {
		e.votes[id] = granted
	}

	grantedCount, total := 0, 0
	for _, g := range e.votes {
		total++
		if g {
			grantedCount++
		}
	}
	q := e.quorum()
	if grantedCount >= q {
		return true, false
	}
	if total-grantedCount >= q {
		return false, true
	}
	return false, false
}

func (e *Engine) failPendingReads() {
	e.pendingReads = nil
}
