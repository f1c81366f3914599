// Package respipe implements the per-connection reply pipeline: a
// FIFO of in-flight commands, each completed in order as replies are
// decoded off the wire.
package respipe

import (
	"sync"

	"redisx/internal/command"
)

// ConnClosedErr is a connection-closed error value a caller may pass
// to DrainWithError. internal/conn does not use it: its teardown fails
// pending commands with a *errs.Error instead.
type ConnClosedErr struct{ Reason error }

func (e ConnClosedErr) Error() string {
	if e.Reason == nil {
		return "respipe: connection closed"
	}
	return "respipe: connection closed: " + e.Reason.Error()
}

func (e ConnClosedErr) Unwrap() error { return e.Reason }

// FIFO is the ordered queue of commands written to a connection's
// stream but not yet completed. Invariant: a command is appended only
// after its bytes have been written; the caller (the
// connection's write path) is responsible for that ordering — FIFO
// itself just enforces head-first completion.
type FIFO struct {
	mu    sync.Mutex
	queue []*command.Command
}

// New returns an empty FIFO.
func New() *FIFO { return &FIFO{} }

// Push appends cmd to the tail of the FIFO. Must be called after the
// command's bytes have reached the wire.
func (f *FIFO) Push(cmd *command.Command) {
	f.mu.Lock()
	f.queue = append(f.queue, cmd)
	f.mu.Unlock()
}

// Len reports how many commands are currently in flight.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// CompleteHead pops the oldest in-flight command and resolves it with
// value, returning the command that was completed (nil if the FIFO
// was empty — callers treat that as a protocol error: an unsolicited
// reply arrived).
func (f *FIFO) CompleteHead(value interface{}) *command.Command {
	cmd := f.pop()
	if cmd != nil {
		cmd.Resolve(value)
	}
	return cmd
}

// FailHead pops the oldest in-flight command and rejects it with err.
func (f *FIFO) FailHead(err error) *command.Command {
	cmd := f.pop()
	if cmd != nil {
		cmd.Reject(err)
	}
	return cmd
}

// Pop removes and returns the oldest in-flight command without
// resolving it, letting the caller inspect the command (its name, for
// a reply transform) before calling Resolve/Reject itself. Returns nil
// if the FIFO is empty.
func (f *FIFO) Pop() *command.Command {
	return f.pop()
}

func (f *FIFO) pop() *command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	cmd := f.queue[0]
	f.queue = f.queue[1:]
	return cmd
}

// Drain empties the FIFO without resolving any command, returning the
// drained commands in order. Used when the caller intends to resend
// them rather than fail them (AutoResendUnfulfilledCommands): a
// command's completion handle must fire exactly once, so this path
// and DrainWithError are mutually exclusive per command.
func (f *FIFO) Drain() []*command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	drained := f.queue
	f.queue = nil
	return drained
}

// DrainWithError fails every remaining in-flight command with err, in
// FIFO order, and returns the drained commands. Their completion
// handles have already fired, so they must not be resent; use Drain
// for commands that are to be resent.
func (f *FIFO) DrainWithError(err error) []*command.Command {
	f.mu.Lock()
	drained := f.queue
	f.queue = nil
	f.mu.Unlock()
	for _, cmd := range drained {
		cmd.Reject(err)
	}
	return drained
}
