// Package pipeline implements the batch submit / transaction engine:
// an ordered sequence of commands flushed to the wire as one buffer,
// with cluster-aware whole-batch retry and MULTI/EXEC wrapping
// composed as state on top of the same Pipeline rather than a
// separate inheriting type (see §4.9 / the source's Transaction
// wrapping note).
package pipeline

import (
	"context"

	"redisx/internal/cluster"
	"redisx/internal/command"
	"redisx/internal/conn"
	"redisx/internal/errs"
)

// Dispatcher executes a whole command batch to completion and reports
// one Result per command in cmds' order. Implementations never call
// Resolve/Reject on cmds themselves — Pipeline owns each command's
// one-shot completion handle and propagates these results on its
// caller's behalf, exactly once.
type Dispatcher interface {
	DispatchBatch(ctx context.Context, cmds []*command.Command, transactional bool) []command.Result
	Clustered() bool
}

// ConnDispatcher dispatches a pipeline batch over a single
// non-clustered Connection: one SubmitAll, then a positional Wait per
// command. No redirection handling applies outside cluster mode, so
// transactional is unused here.
type ConnDispatcher struct {
	Conn *conn.Connection
}

func (d ConnDispatcher) Clustered() bool { return false }

func (d ConnDispatcher) DispatchBatch(ctx context.Context, cmds []*command.Command, _ bool) []command.Result {
	if !d.Conn.Status().IsReady() {
		return failAll(cmds, errs.New(errs.KindConnectionClosed, "connection not ready for pipeline submit"))
	}
	captureStack := d.Conn.ShowFriendlyErrorStack()
	clones := make([]*command.Command, len(cmds))
	for i, cmd := range cmds {
		if captureStack {
			cmd.CaptureStack()
		}
		clones[i] = cmd.Clone()
	}
	if err := d.Conn.SubmitAll(clones); err != nil {
		return failAll(cmds, err)
	}
	out := make([]command.Result, len(clones))
	for i, clone := range clones {
		v, err := clone.Wait(ctx)
		out[i] = command.Result{Value: v, Err: err}
	}
	return out
}

// ClusterDispatcher dispatches a pipeline batch through a cluster
// Router, which owns single-slot node selection and whole-batch
// redirection retry (internal/cluster/batch.go).
type ClusterDispatcher struct {
	Router *cluster.Router
}

func (d ClusterDispatcher) Clustered() bool { return true }

func (d ClusterDispatcher) DispatchBatch(ctx context.Context, cmds []*command.Command, transactional bool) []command.Result {
	return d.Router.DispatchBatch(ctx, cmds, transactional)
}

func failAll(cmds []*command.Command, err error) []command.Result {
	out := make([]command.Result, len(cmds))
	for i := range out {
		out[i] = command.Result{Err: err}
	}
	return out
}
