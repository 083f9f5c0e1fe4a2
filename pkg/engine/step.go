package engine

import "github.com/cuemby/raftd/pkg/raftpb"

// Step processes one inbound message. Per §4.1 "Step-down", any role
// that observes term > current_term persists that term, clears vote, and
// becomes Follower before processing the message's content.
func (e *Engine) Step(m raftpb.Message) {
	if m.Term > e.term {
		leaderHint := NodeID(0)
		if m.Type == raftpb.MsgAppendEntries || m.Type == raftpb.MsgInstallSnapshot {
			leaderHint = m.From
		}
		e.becomeFollower(m.Term, leaderHint)
	} else if m.Term < e.term && m.Term != 0 {
		// Stale message: reject where a reply is expected, otherwise drop.
		switch m.Type {
		case raftpb.MsgRequestVote:
			e.send(raftpb.Message{Type: raftpb.MsgRequestVoteResp, To: m.From, VoteGranted: false})
		case raftpb.MsgAppendEntries:
			e.send(raftpb.Message{Type: raftpb.MsgAppendEntriesResp, To: m.From, Success: false})
		}
		return
	}

	switch m.Type {
	case raftpb.MsgRequestVote:
		e.handleRequestVote(m)
	case raftpb.MsgRequestVoteResp:
		e.handleRequestVoteResp(m)
	case raftpb.MsgAppendEntries:
		e.handleAppendEntries(m)
	case raftpb.MsgAppendEntriesResp:
		e.handleAppendEntriesResp(m)
	case raftpb.MsgInstallSnapshot:
		e.handleInstallSnapshot(m)
	case raftpb.MsgInstallSnapshotResp:
		e.handleInstallSnapshotResp(m)
	}
}

// handleRequestVote implements §4.1's grant conditions exactly.
func (e *Engine) handleRequestVote(m raftpb.Message) {
	canVote := e.vote == 0 || e.vote == m.From
	logOK := e.log.isUpToDate(m.LastLogTerm, m.LastLogIndex)

	grant := canVote && logOK
	if grant {
		e.vote = m.From
		e.markHardStateDirty()
		e.electionElapsed = 0
		e.resetRandomizedTimeout()
	}
	e.send(raftpb.Message{Type: raftpb.MsgRequestVoteResp, To: m.From, VoteGranted: grant})
}

func (e *Engine) handleRequestVoteResp(m raftpb.Message) {
	if e.role != Candidate {
		return
	}
	won, lost := e.poll(m.From, m.VoteGranted)
	if won {
		e.becomeLeader()
	} else if lost {
		e.becomeFollower(e.term, 0)
	}
}

// handleAppendEntries implements §4.1's recipient logic steps 2-6.
func (e *Engine) handleAppendEntries(m raftpb.Message) {
	if e.role == Candidate {
		e.becomeFollower(e.term, m.From)
	} else {
		e.leader = m.From
		e.electionElapsed = 0
		e.resetRandomizedTimeout()
	}

	if m.PrevLogIndex > 0 {
		t, ok := e.log.termAt(m.PrevLogIndex)
		if !ok || t != m.PrevLogTerm {
			hint := e.log.lastIndex() + 1
			if ok {
				hint = e.firstIndexOfConflictingTerm(m.PrevLogIndex, t)
			}
			e.send(raftpb.Message{Type: raftpb.MsgAppendEntriesResp, To: m.From, Success: false, HintIndex: hint})
			return
		}
	}

	if len(m.Entries) > 0 {
		e.log.maybeTruncateAndAppend(m.Entries)
	}

	if m.LeaderCommit > e.log.committed {
		lastNew := m.PrevLogIndex + raftpb.Index(len(m.Entries))
		newCommit := m.LeaderCommit
		if lastNew < newCommit {
			newCommit = lastNew
		}
		if newCommit > e.log.committed {
			e.log.committed = newCommit
			e.markHardStateDirty()
		}
	}

	matchIndex := m.PrevLogIndex + raftpb.Index(len(m.Entries))
	e.send(raftpb.Message{Type: raftpb.MsgAppendEntriesResp, To: m.From, Success: true, MatchIndex: matchIndex})
}

// firstIndexOfConflictingTerm walks backward to find the first index in
// the conflicting term, per §4.1's hint_index definition.
func (e *Engine) firstIndexOfConflictingTerm(at raftpb.Index, term raftpb.Term) raftpb.Index {
	i := at
	for i > e.log.firstIndex() {
		t, ok := e.log.termAt(i - 1)
		if !ok || t != term {
			break
		}
		i--
	}
	return i
}

func (e *Engine) handleAppendEntriesResp(m raftpb.Message) {
	if e.role != Leader {
		return
	}
	pr := e.progress[m.From]
	if pr == nil {
		return
	}

	pr.TicksSinceAck = 0

	if !m.Success {
		if m.HintIndex > 0 {
			pr.NextIndex = m.HintIndex
		} else if pr.NextIndex > 1 {
			pr.NextIndex--
		}
		e.sendAppend(m.From)
		return
	}

	if m.MatchIndex > pr.MatchIndex {
		pr.MatchIndex = m.MatchIndex
	}
	pr.NextIndex = pr.MatchIndex + 1
	e.maybeAdvanceCommit()
	e.ackRead(m.From)

	if pr.MatchIndex < e.log.lastIndex() {
		e.sendAppend(m.From)
	}
}

// handleInstallSnapshot implements §4.1's InstallSnapshot recipient
// logic: persist durably (signaled via output), clear the log prefix,
// reset commit/applied to included_index, adopt the configuration.
func (e *Engine) handleInstallSnapshot(m raftpb.Message) {
	e.leader = m.From
	e.electionElapsed = 0

	if m.Snapshot.IncludedIndex <= e.log.committed {
		// Stale snapshot; already have this via normal replication.
		e.send(raftpb.Message{Type: raftpb.MsgInstallSnapshotResp, To: m.From, MatchIndex: e.log.lastIndex()})
		return
	}

	e.out.SnapshotToPersist = &m.Snapshot
	e.log.installSnapshot(m.Snapshot)
	e.config = m.Snapshot.Configuration.Clone()
	e.markHardStateDirty()

	e.send(raftpb.Message{Type: raftpb.MsgInstallSnapshotResp, To: m.From, MatchIndex: e.log.lastIndex()})
}

func (e *Engine) handleInstallSnapshotResp(m raftpb.Message) {
	if e.role != Leader {
		return
	}
	pr := e.progress[m.From]
	if pr == nil {
		return
	}
	pr.TicksSinceAck = 0
	if m.MatchIndex > pr.MatchIndex {
		pr.MatchIndex = m.MatchIndex
	}
	pr.NextIndex = pr.MatchIndex + 1
	e.maybeAdvanceCommit()
}
