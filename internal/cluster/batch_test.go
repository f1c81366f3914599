package cluster

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"redisx/internal/command"
	"redisx/internal/conn"
)

func TestDispatchBatchSucceedsSingleSlot(t *testing.T) {
	var addr string
	server, stop := scriptedServer(t, func(args []string) string {
		if strings.EqualFold(args[0], "cluster") {
			return clusterSlotsReplyFor(addr)
		}
		return "+OK\r\n"
	})
	addr = server
	defer stop()

	r := New(Options{SeedAddrs: []string{addr}, Dial: dialer(t)})
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cmds := []*command.Command{command.New("set", "k", "1"), command.New("set", "k", "2")}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results := r.DispatchBatch(ctx, cmds, false)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: unexpected error %v", i, res.Err)
		}
		if res.Value != "OK" {
			t.Fatalf("result %d: expected OK, got %v", i, res.Value)
		}
	}
}

func TestDispatchBatchFollowsMovedAsWhole(t *testing.T) {
	targetAddr, stopTarget := scriptedServer(t, func(args []string) string {
		return "+OK\r\n"
	})
	defer stopTarget()

	var sourceAddr string
	server, stopSource := scriptedServer(t, func(args []string) string {
		if strings.EqualFold(args[0], "cluster") {
			return clusterSlotsReplyFor(sourceAddr)
		}
		return fmt.Sprintf("-MOVED 0 %s\r\n", targetAddr)
	})
	sourceAddr = server
	defer stopSource()

	r := New(Options{SeedAddrs: []string{sourceAddr}, Dial: dialer(t)})
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cmds := []*command.Command{command.New("get", "foo"), command.New("get", "foo")}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results := r.DispatchBatch(ctx, cmds, false)
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: unexpected error after whole-batch MOVED retry: %v", i, res.Err)
		}
		if res.Value != "OK" {
			t.Fatalf("result %d: expected OK, got %v", i, res.Value)
		}
	}
}

func TestDispatchBatchRejectsCrossSlot(t *testing.T) {
	var addr string
	server, stop := scriptedServer(t, func(args []string) string {
		if strings.EqualFold(args[0], "cluster") {
			return clusterSlotsReplyFor(addr)
		}
		return "+OK\r\n"
	})
	addr = server
	defer stop()

	r := New(Options{SeedAddrs: []string{addr}, Dial: dialer(t)})
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cmds := []*command.Command{command.New("set", "a", "1"), command.New("set", "b", "2")}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results := r.DispatchBatch(ctx, cmds, false)
	for i, res := range results {
		if res.Err == nil {
			t.Fatalf("result %d: expected CrossSlot error", i)
		}
	}
}

func TestDispatchBatchRejectsCustomCommand(t *testing.T) {
	r := New(Options{SeedAddrs: nil, Dial: func(string) *conn.Connection { return nil }})
	cmds := []*command.Command{command.New("mymodule.cmd", "x")}
	results := r.DispatchBatch(context.Background(), cmds, false)
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected CustomInPipeline error, got %+v", results)
	}
}
