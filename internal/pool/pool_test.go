package pool

import (
	"testing"

	"redisx/internal/conn"
)

func newTestPool() *Pool {
	return New(func(addr string) *conn.Connection {
		return conn.New(conn.Options{Addr: addr})
	})
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	p := newTestPool()
	a := p.FindOrCreate("10.0.0.1:6379", Primary)
	b := p.FindOrCreate("10.0.0.1:6379", Primary)
	if a != b {
		t.Fatalf("expected same connection instance for repeated FindOrCreate")
	}
	if len(p.All()) != 1 {
		t.Fatalf("expected 1 pooled node, got %d", len(p.All()))
	}
}

func TestPrimariesAndReplicas(t *testing.T) {
	p := newTestPool()
	p.FindOrCreate("10.0.0.1:6379", Primary)
	p.FindOrCreate("10.0.0.2:6379", Replica)
	p.FindOrCreate("10.0.0.3:6379", Replica)
	if len(p.Primaries()) != 1 {
		t.Fatalf("expected 1 primary")
	}
	if len(p.Replicas()) != 2 {
		t.Fatalf("expected 2 replicas")
	}
}

func TestSampleFallsBackToPrimaryWithoutReplicaSet(t *testing.T) {
	p := newTestPool()
	got := p.Sample("10.0.0.1:6379", Replica, "somekey")
	if got != "10.0.0.1:6379" {
		t.Fatalf("expected fallback to primary, got %s", got)
	}
}

func TestSampleStableForSameKey(t *testing.T) {
	p := newTestPool()
	p.SetReplicaSet("10.0.0.1:6379", []string{"10.0.0.2:6379", "10.0.0.3:6379"})
	first := p.Sample("10.0.0.1:6379", Replica, "mykey")
	second := p.Sample("10.0.0.1:6379", Replica, "mykey")
	if first != second {
		t.Fatalf("expected stable sample for the same key, got %s then %s", first, second)
	}
}

func TestDrainRemovesUnlistedNodes(t *testing.T) {
	p := newTestPool()
	p.FindOrCreate("10.0.0.1:6379", Primary)
	p.FindOrCreate("10.0.0.2:6379", Replica)
	p.Drain(map[string]struct{}{"10.0.0.1:6379": {}})
	if len(p.All()) != 1 {
		t.Fatalf("expected 1 node after drain, got %d", len(p.All()))
	}
}
