package config

import (
	"testing"

	"redisx/internal/cluster"
)

func TestToConnOptionsMapsFields(t *testing.T) {
	path := writeTemp(t, "opts.yaml", "host: 127.0.0.1\nport: 6380\npassword: secret\nvalueCodec: zstd\n")
	o, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	co := o.ToConnOptions()
	if co.Addr != "127.0.0.1:6380" {
		t.Fatalf("unexpected Addr: %s", co.Addr)
	}
	if co.Password != "secret" {
		t.Fatalf("unexpected Password: %s", co.Password)
	}
	if co.ValueCodec == nil {
		t.Fatalf("expected ValueCodec to resolve from %q", o.ValueCodec)
	}
	if !co.EnableOfflineQueue {
		t.Fatalf("expected EnableOfflineQueue to default true")
	}
}

func TestToRouterOptionsMapsScaleReads(t *testing.T) {
	path := writeTemp(t, "cluster.yaml", "nodes:\n  - 10.0.0.1:6379\nscaleReads: all\nmaxRedirections: 8\n")
	c, err := LoadClusterOptions(path)
	if err != nil {
		t.Fatalf("LoadClusterOptions: %v", err)
	}
	ro := c.ToRouterOptions()
	if len(ro.SeedAddrs) != 1 || ro.SeedAddrs[0] != "10.0.0.1:6379" {
		t.Fatalf("unexpected SeedAddrs: %v", ro.SeedAddrs)
	}
	if ro.MaxRedirections != 8 {
		t.Fatalf("unexpected MaxRedirections: %d", ro.MaxRedirections)
	}
	if ro.ScaleReads != cluster.ScaleReadsAll {
		t.Fatalf("expected ScaleReadsAll, got %v", ro.ScaleReads)
	}
}
