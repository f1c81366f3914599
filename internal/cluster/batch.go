package cluster

import (
	"context"
	"time"

	"redisx/internal/command"
	"redisx/internal/errs"
	"redisx/internal/pool"
)

// DispatchBatch routes a whole command batch to the node owning its
// single slot, following MOVED/ASK/TRYAGAIN/CLUSTERDOWN redirections
// across the entire batch as a unit (see internal/pipeline's
// cluster-aware pipeline retry). Callers must already have rejected
// custom commands and verified cmds hash to one slot before sending a
// byte; DispatchBatch repeats the single-slot computation itself so it
// is safe to call directly, but the pipeline engine's own upfront
// check is what guarantees CrossSlot fails before any byte is
// written at all.
//
// transactional relaxes the "a completed write blocks retry" rule: a
// MULTI...EXEC batch's member commands only take effect inside the
// EXEC reply, so their own QUEUED position is never itself a
// completed write.
func (r *Router) DispatchBatch(ctx context.Context, cmds []*command.Command, transactional bool) []command.Result {
	slot, node, err := r.planBatch(cmds)
	if err != nil {
		return failAll(cmds, err)
	}

	redirections := r.opts.MaxRedirections
	asking := false

	for attempt := 0; attempt < redirections; attempt++ {
		c := r.pool.FindOrCreate(node, pool.Primary)
		if !c.Status().IsReady() {
			time.Sleep(r.tryAgainDelay())
			continue
		}

		if asking {
			askCmd := command.New("asking")
			askCmd.Ignore = true
			if err := c.Submit(askCmd); err == nil {
				waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				askCmd.Wait(waitCtx)
				cancel()
			}
		}

		captureStack := c.ShowFriendlyErrorStack()
		attemptCmds := make([]*command.Command, len(cmds))
		for i, cmd := range cmds {
			if captureStack {
				cmd.CaptureStack()
			}
			attemptCmds[i] = cmd.Clone()
		}
		if err := c.SubmitAll(attemptCmds); err != nil {
			return failAll(cmds, err)
		}
		results := make([]command.Result, len(attemptCmds))
		for i, clone := range attemptCmds {
			v, werr := clone.Wait(ctx)
			results[i] = command.Result{Value: v, Err: werr}
		}

		retryable, kind, replyKind, target := analyzeBatchRetry(cmds, results, transactional)
		if !retryable {
			return results
		}

		switch {
		case kind == errs.KindReply && replyKind == errs.ReplyMoved:
			if slot >= 0 {
				r.mu.Lock()
				r.slots.Reassign(slot, target)
				r.mu.Unlock()
			}
			r.TriggerRefresh()
			node = target
			asking = false
		case kind == errs.KindReply && replyKind == errs.ReplyAsk:
			node = target
			asking = true
		case kind == errs.KindReply && (replyKind == errs.ReplyTryAgain || replyKind == errs.ReplyClusterDown):
			time.Sleep(r.tryAgainDelay())
			asking = false
		case kind == errs.KindConnectionClosed:
			time.Sleep(r.tryAgainDelay())
			asking = false
		default:
			return results
		}
	}
	return failAll(cmds, errs.New(errs.KindMaxRedirections, "exceeded max_redirections"))
}

// planBatch rejects custom commands outright (ErrorKind::CustomInPipeline),
// computes the batch's single slot across every keyed command, and
// picks the node currently owning it.
func (r *Router) planBatch(cmds []*command.Command) (slot int, node string, err error) {
	var keys []string
	allReadonly := true
	for _, cmd := range cmds {
		if cmd.Flags.IsCustom {
			return 0, "", errs.New(errs.KindCustomInPipeline, "custom command in cluster pipeline")
		}
		if !(cmd.Flags.IsReadonly && !cmd.Flags.IsWrite) {
			allReadonly = false
		}
		keys = append(keys, command.Keys(cmd.Name, cmd.Args)...)
	}
	role := pool.Primary
	if allReadonly {
		role = r.readRole()
	}
	if len(keys) == 0 {
		// A batch of entirely keyless commands (e.g. a run of PINGs) has
		// no slot to track, so a later MOVED in this batch has nothing
		// to Reassign; DispatchBatch's redirect branch guards on this.
		node = r.pool.AnyPrimary("")
		if node == "" {
			return -1, "", errs.New(errs.KindClusterAllFailed, "no primary node available")
		}
		return -1, node, nil
	}
	slot, err = r.slotForKeys(keys)
	if err != nil {
		return 0, "", err
	}
	r.mu.RLock()
	primary := r.slots.Owner(slot)
	r.mu.RUnlock()
	if primary == "" {
		return 0, "", errs.New(errs.KindClusterAllFailed, "no node owns the target slot")
	}
	node = r.pool.Sample(primary, role, routingKeyOf(keys))
	return slot, node, nil
}

// analyzeBatchRetry inspects a batch's positional results and decides
// whether the whole batch should be redirected and resent: every
// error must share identical kind+reply+message, and (outside a
// transaction) no non-error position may be a write, since resending
// would otherwise re-execute it. EXECABORT on the EXEC position is
// tolerated — it never defeats retriability, since an earlier queueing
// error already carries the real redirection.
func analyzeBatchRetry(cmds []*command.Command, results []command.Result, transactional bool) (retryable bool, kind errs.Kind, replyKind errs.ReplyKind, target string) {
	var first *errs.Error
	for i, res := range results {
		if res.Err == nil {
			if !transactional && i < len(cmds) && cmds[i].Flags.IsWrite && !cmds[i].Ignore {
				return false, "", "", ""
			}
			continue
		}
		rerr, ok := res.Err.(*errs.Error)
		if !ok || !rerr.IsRetryable() {
			return false, "", "", ""
		}
		if rerr.Kind == errs.KindReply && rerr.Reply == errs.ReplyExecAbort {
			continue
		}
		if first == nil {
			first = rerr
		} else if first.Kind != rerr.Kind || first.Reply != rerr.Reply || first.Message != rerr.Message {
			return false, "", "", ""
		}
	}
	if first == nil {
		return false, "", "", ""
	}
	return true, first.Kind, first.Reply, first.Target
}

func failAll(cmds []*command.Command, err error) []command.Result {
	out := make([]command.Result, len(cmds))
	for i := range out {
		out[i] = command.Result{Err: err}
	}
	return out
}
