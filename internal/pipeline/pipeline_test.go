package pipeline

import (
	"context"
	"testing"

	"redisx/internal/command"
	"redisx/internal/errs"
)

// fakeDispatcher returns a canned results slice for whatever batch it
// receives, recording the batch it was given for assertions.
type fakeDispatcher struct {
	clustered bool
	results   []command.Result
	gotCmds   []*command.Command
	gotTxn    bool
}

func (f *fakeDispatcher) Clustered() bool { return f.clustered }

func (f *fakeDispatcher) DispatchBatch(_ context.Context, cmds []*command.Command, transactional bool) []command.Result {
	f.gotCmds = cmds
	f.gotTxn = transactional
	return f.results
}

func TestPipelineExecResolvesPositionally(t *testing.T) {
	d := &fakeDispatcher{results: []command.Result{
		{Value: int64(1)},
		{Value: int64(2)},
		{Value: int64(3)},
	}}
	p := New(d)
	c1 := p.Add(command.New("incr", "c"))
	c2 := p.Add(command.New("incr", "c"))
	c3 := p.Add(command.New("incr", "c"))

	out, err := p.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(out) != 3 || out[0] != int64(1) || out[1] != int64(2) || out[2] != int64(3) {
		t.Fatalf("unexpected positional results: %v", out)
	}

	for i, c := range []*command.Command{c1, c2, c3} {
		v, err := c.Wait(context.Background())
		if err != nil {
			t.Fatalf("command %d: unexpected error %v", i, err)
		}
		if v != int64(i+1) {
			t.Fatalf("command %d: expected %d, got %v", i, i+1, v)
		}
	}
}

func TestPipelineIgnoreCompaction(t *testing.T) {
	asking := command.New("asking")
	asking.Ignore = true

	d := &fakeDispatcher{results: []command.Result{
		{Value: "OK"},
		{Value: "PONG"},
	}}
	p := New(d)
	p.Add(asking)
	p.Add(command.New("ping"))

	out, err := p.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(out) != 1 || out[0] != "PONG" {
		t.Fatalf("expected ignore-compacted single result, got %v", out)
	}
}

func TestPipelineRejectsCustomCommandInClusterMode(t *testing.T) {
	d := &fakeDispatcher{clustered: true}
	p := New(d)
	custom := p.Add(command.New("mymodule.cmd", "x"))

	_, err := p.Exec(context.Background())
	if err == nil {
		t.Fatalf("expected CustomInPipeline error")
	}
	rerr, ok := err.(*errs.Error)
	if !ok || rerr.Kind != errs.KindCustomInPipeline {
		t.Fatalf("expected KindCustomInPipeline, got %v", err)
	}
	if _, waitErr := custom.Wait(context.Background()); waitErr == nil {
		t.Fatalf("expected the rejected command's own Wait to also surface the error")
	}
}

func TestPipelineMultiAppliesPerCommandTransform(t *testing.T) {
	d := &fakeDispatcher{results: []command.Result{
		{Value: "OK"},    // MULTI
		{Value: "QUEUED"}, // HGETALL queued
		{Value: []interface{}{
			[]interface{}{"f1", "v1"},
		}}, // EXEC: one sub-reply, the HGETALL pairs array
	}}
	p := New(d).Multi()
	p.Add(command.New("hgetall", "h"))

	out, err := p.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 positions (MULTI, HGETALL, EXEC), got %d: %v", len(out), out)
	}
	if out[0] != "OK" || out[1] != "QUEUED" {
		t.Fatalf("unexpected MULTI/queue positions: %v", out)
	}
	execResult, ok := out[2].([]interface{})
	if !ok || len(execResult) != 1 {
		t.Fatalf("expected EXEC position to hold one transformed sub-reply, got %v", out[2])
	}
	m, ok := execResult[0].(map[string]interface{})
	if !ok || m["f1"] != "v1" {
		t.Fatalf("expected HGETALL sub-reply flattened into a map, got %v", execResult[0])
	}

	if !d.gotTxn {
		t.Fatalf("expected dispatcher to be told this batch is transactional")
	}
	if len(d.gotCmds) != 3 {
		t.Fatalf("expected wire batch of MULTI+HGETALL+EXEC, got %d commands", len(d.gotCmds))
	}
}
