package queue

import (
	"runtime"
	"time"

	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultCapacity is the ring buffer's default slot count (§4.5).
const DefaultCapacity = 1024

// spinAttempts bounds how many times Submit retries a full queue before
// giving up with ErrQueueFull, per §4.5's "spin-wait up to a small
// bound". A channel send is used as the underlying primitive (Go's
// natural bounded MPSC queue) with a short Gosched/sleep backoff between
// attempts rather than a true busy-spin, so a slow consumer doesn't
// burn a full CPU core on every blocked submitter.
const spinAttempts = 8

// Queue is the bounded, multi-producer/single-consumer command queue
// between SQL-calling host threads and the worker.
type Queue struct {
	ch chan *Command
}

// New returns a Queue with the given capacity (0 means DefaultCapacity).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan *Command, capacity)}
}

// Submit enqueues cmd, assigning it an ID and result channel first. It
// spin-waits briefly if the queue is full, then fails with
// errs.ErrQueueFull rather than blocking the caller indefinitely — SQL
// callers run on host threads the worker must never be able to stall.
func (q *Queue) Submit(cmd *Command) (<-chan Result, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.done = make(chan Result, 1)

	for attempt := 0; attempt < spinAttempts; attempt++ {
		select {
		case q.ch <- cmd:
			return cmd.done, nil
		default:
		}
		if attempt < spinAttempts-1 {
			runtime.Gosched()
			time.Sleep(time.Microsecond * time.Duration(1<<uint(attempt)))
		}
	}
	metrics.QueueFullTotal.Inc()
	return nil, errs.ErrQueueFull
}

// Drain removes and returns every command currently queued, without
// blocking. The worker calls this once per tick, before calling
// engine.Tick, and feeds each returned Command into the engine in FIFO
// order (§4.4 step 2).
func (q *Queue) Drain() []*Command {
	var cmds []*Command
	for {
		select {
		case c := <-q.ch:
			cmds = append(cmds, c)
		default:
			return cmds
		}
	}
}

// Complete delivers res to cmd's submitter and closes its result
// channel. Called by the worker exactly once per dequeued Command.
func (q *Queue) Complete(cmd *Command, res Result) {
	cmd.done <- res
	close(cmd.done)
}

// Depth reports the number of commands currently queued, for the
// raftd_queue_depth gauge.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// FailAll drains the queue and completes every remaining command with
// err, used during cooperative shutdown (§5 "Cancellation": in-flight
// commands at shutdown are failed with Shutdown).
func (q *Queue) FailAll(err error) {
	for _, cmd := range q.Drain() {
		q.Complete(cmd, Result{Err: err})
	}
}
