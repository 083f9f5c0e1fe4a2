package engine

// Tick advances the engine by one cadence step. It must be called
// exactly once per worker iteration, after all inbound messages and
// command-queue proposals for that iteration have been fed in via Step
// and Propose/ProposeConfChange.
func (e *Engine) Tick() {
	switch e.role {
	case Leader:
		e.tickHeartbeat()
	default:
		e.tickElection()
	}
}

// tickElection implements §4.1's "Election timer": counts down while
// follower or candidate; on expiry, becomes a candidate and starts an
// election.
func (e *Engine) tickElection() {
	e.electionElapsed++
	if e.electionElapsed >= e.randomizedTimeout {
		e.electionElapsed = 0
		e.campaign()
	}
}

// tickHeartbeat drives the leader's heartbeat cadence and the
// leader-step-down check: a leader that has not reached a majority of
// peers within one election timeout must step down (§4.1
// "Step-down"), preventing a partitioned leader from serving stale
// reads as if still current.
func (e *Engine) tickHeartbeat() {
	e.heartbeatElapsed++
	e.electionElapsed++
	for _, pr := range e.progress {
		pr.TicksSinceAck++
	}

	if e.electionElapsed >= e.electionTicks {
		e.electionElapsed = 0
		if !e.reachedMajorityRecently() {
			e.becomeFollower(e.term, 0)
			return
		}
	}

	if e.heartbeatElapsed >= e.heartbeatTicks {
		e.heartbeatElapsed = 0
		e.bcastHeartbeat()
	}
}

// reachedMajorityRecently reports whether a quorum of peers (including
// self) has acknowledged this leader within the last election timeout.
func (e *Engine) reachedMajorityRecently() bool {
	acked := 1 // self
	for _, pr := range e.progress {
		if pr.TicksSinceAck < e.electionTicks {
			acked++
		}
	}
	return acked >= e.quorum()
}
