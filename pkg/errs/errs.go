// Package errs defines the caller-visible error taxonomy returned
// synchronously from the control surface. These are sentinel errors,
// checked with errors.Is; they are distinct from the liveness-transient
// conditions (peer unreachable, parse errors) which are logged and
// retried internally and never surfaced here, and from safety-fatal
// conditions which abort the worker entirely.
package errs

import "errors"

var (
	// ErrNotLeader is returned when an operation that requires
	// leadership is attempted on a follower or candidate. Callers
	// should consult LeaderHint (see NotLeaderWithHint) for the
	// best-known leader.
	ErrNotLeader = errors.New("raftd: not leader")

	// ErrPendingConfChange is returned when a configuration change is
	// proposed while another is still unapplied.
	ErrPendingConfChange = errors.New("raftd: configuration change already pending")

	// ErrDuplicateNode is returned by add_node for an id already present
	// in the configuration.
	ErrDuplicateNode = errors.New("raftd: duplicate node id")

	// ErrUnknownNode is returned by remove_node for an id not present in
	// the configuration.
	ErrUnknownNode = errors.New("raftd: unknown node id")

	// ErrQueueFull is returned when the bounded command queue rejects a
	// submission after the submitter's spin-wait bound elapses.
	ErrQueueFull = errors.New("raftd: command queue full")

	// ErrShutdown is returned to any command still queued when the
	// worker begins cooperative shutdown.
	ErrShutdown = errors.New("raftd: worker shutting down")

	// ErrNotInitialized names the not-yet-initialized condition. No
	// control-surface operation returns it; adminhttp maps it to 503
	// if it ever reaches that layer.
	ErrNotInitialized = errors.New("raftd: not initialized")

	// ErrAlreadyInitialized names a repeated init() call. control.Init
	// treats that call as a benign no-op and returns nil, never this
	// error.
	ErrAlreadyInitialized = errors.New("raftd: already initialized")

	// ErrCommandTimeout is returned by the control surface when a
	// command does not commit within its submission deadline — the
	// queued command itself is left in place and may still commit
	// later; this only means the caller stopped waiting.
	ErrCommandTimeout = errors.New("raftd: command timed out waiting for commit")
)

// leaderHintErr wraps ErrNotLeader with the best-known leader id, if any.
type leaderHintErr struct {
	leader uint64
}

func (e *leaderHintErr) Error() string {
	return ErrNotLeader.Error()
}

func (e *leaderHintErr) Unwrap() error {
	return ErrNotLeader
}

// LeaderHint returns the leader id embedded in err, if err (or something
// it wraps) was produced by NotLeaderWithHint. ok is false and hint is 0
// when no hint is available.
func LeaderHint(err error) (hint uint64, ok bool) {
	var lhe *leaderHintErr
	if errors.As(err, &lhe) {
		return lhe.leader, true
	}
	return 0, false
}

// NotLeaderWithHint builds an ErrNotLeader carrying the best-known leader
// id, for control-surface operations that can offer a redirect hint.
func NotLeaderWithHint(leaderID uint64) error {
	return &leaderHintErr{leader: leaderID}
}
