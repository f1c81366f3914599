package pipeline

import (
	"context"

	"redisx/internal/command"
	"redisx/internal/errs"
)

// Pipeline batches commands for one stream write, ordering replies
// positionally per §4.9: Add accumulates commands, Exec flushes the
// whole batch in a single round trip and resolves every accumulated
// command's completion handle exactly once.
type Pipeline struct {
	dispatcher    Dispatcher
	cmds          []*command.Command
	transactional bool
}

// New builds an empty Pipeline dispatching through d.
func New(d Dispatcher) *Pipeline {
	return &Pipeline{dispatcher: d}
}

// Add appends cmd to the batch and returns it, so a caller that built
// the pipeline incrementally can still hold and Wait on an individual
// command instead of reading Exec's positional return value.
func (p *Pipeline) Add(cmd *command.Command) *command.Command {
	p.cmds = append(p.cmds, cmd)
	return cmd
}

// Len reports the number of commands queued so far.
func (p *Pipeline) Len() int { return len(p.cmds) }

// Multi marks this pipeline as a transaction: Exec wraps the batch in
// MULTI/EXEC instead of sending it as a plain pipeline. This is state
// composed onto Pipeline, not a distinct Transaction type overriding
// pipeline methods — a shadowing method here would make repeated or
// nested Multi() calls fragile.
func (p *Pipeline) Multi() *Pipeline {
	p.transactional = true
	return p
}

// Exec flushes every accumulated command as a single batch, following
// cluster redirections across the whole batch as a unit, and resolves
// each command's completion handle with its positional result exactly
// once. It also returns the positional, ignore-compacted results
// directly as a convenience for callers who built the pipeline with
// Add and don't want to re-collect each Command.
func (p *Pipeline) Exec(ctx context.Context) ([]interface{}, error) {
	cmds := p.cmds
	if len(cmds) == 0 {
		return nil, nil
	}

	if p.dispatcher.Clustered() {
		for _, cmd := range cmds {
			if cmd.Flags.IsCustom {
				err := errs.New(errs.KindCustomInPipeline, "custom command in cluster pipeline")
				for _, c := range cmds {
					c.Reject(err)
				}
				return nil, err
			}
		}
	}

	var wire []*command.Command
	if p.transactional {
		wire = make([]*command.Command, 0, len(cmds)+2)
		wire = append(wire, command.New("multi"))
		wire = append(wire, cmds...)
		wire = append(wire, command.New("exec"))
	} else {
		wire = cmds
	}

	results := p.dispatcher.DispatchBatch(ctx, wire, p.transactional)

	if p.transactional {
		applyExecTransform(wire, cmds, results)
	}

	out := make([]interface{}, 0, len(wire))
	var firstErr error
	for i, cmd := range wire {
		res := results[i]
		if res.Err != nil {
			cmd.Reject(res.Err)
		} else {
			cmd.Resolve(res.Value)
		}
		if cmd.Ignore {
			continue
		}
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
		}
		out = append(out, res.Value)
	}
	return out, firstErr
}

// applyExecTransform re-derives the EXEC reply's per-sub-reply
// transform now that each queued command's name is known: by the time
// a batch reply reaches here, the generic TransformReply("exec", ...)
// path has already Decode()'d the sub-reply array without knowledge of
// which command produced which position.
func applyExecTransform(wire, queued []*command.Command, results []command.Result) {
	execIdx := len(wire) - 1
	res := results[execIdx]
	if res.Err != nil {
		return
	}
	raw, ok := res.Value.([]interface{})
	if !ok {
		return
	}
	transformed := make([]interface{}, len(raw))
	for i, v := range raw {
		if i < len(queued) {
			transformed[i] = command.TransformDecoded(queued[i].Name, v)
		} else {
			transformed[i] = v
		}
	}
	results[execIdx].Value = transformed
}
