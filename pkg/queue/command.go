package queue

import "github.com/cuemby/raftd/pkg/raftpb"

// CommandKind identifies what a queued Command asks the worker to do.
type CommandKind uint8

const (
	CommandPropose CommandKind = iota
	CommandAddNode
	CommandRemoveNode
	CommandSnapshot
	CommandReadIndex
)

func (k CommandKind) String() string {
	switch k {
	case CommandPropose:
		return "Propose"
	case CommandAddNode:
		return "AddNode"
	case CommandRemoveNode:
		return "RemoveNode"
	case CommandSnapshot:
		return "Snapshot"
	case CommandReadIndex:
		return "ReadIndex"
	default:
		return "Unknown"
	}
}

// Command is one caller-submitted unit of work. Exactly one of Payload
// (Propose/Snapshot) or ConfChange (AddNode/RemoveNode) is meaningful,
// depending on Kind. Each Command produces exactly one engine input once
// the worker dequeues it (§4.5).
type Command struct {
	ID         string
	Kind       CommandKind
	Payload    []byte
	ConfChange raftpb.ConfChange

	done chan Result
}

// Result is delivered to the submitter once the worker has acted on a
// Command: the log index it was assigned (for Propose/AddNode/
// RemoveNode), or an error (ErrNotLeader, ErrPendingConfChange, etc.).
type Result struct {
	Index raftpb.Index
	Err   error
}

// Done returns the channel the submitter should receive on to learn the
// outcome. It is closed by the worker after sending exactly one Result.
func (c *Command) Done() <-chan Result {
	return c.done
}
