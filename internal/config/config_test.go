package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadOptionsFillsDefaults(t *testing.T) {
	path := writeTemp(t, "opts.yaml", "host: 127.0.0.1\nport: 6379\npassword: secret\n")
	o, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if o.Host != "127.0.0.1" || o.Port != 6379 || o.Password != "secret" {
		t.Fatalf("unexpected fields: %+v", o)
	}
	if o.Family != "tcp" {
		t.Fatalf("expected default family tcp, got %q", o.Family)
	}
	if o.ConnectTimeoutMs != 5000 {
		t.Fatalf("expected default connect timeout, got %d", o.ConnectTimeoutMs)
	}
	if o.Addr() != "127.0.0.1:6379" {
		t.Fatalf("unexpected Addr(): %s", o.Addr())
	}
}

func TestLoadClusterOptionsFillsDefaults(t *testing.T) {
	path := writeTemp(t, "cluster.yaml", "nodes:\n  - 10.0.0.1:6379\n  - 10.0.0.2:6379\nscaleReads: slave\n")
	c, err := LoadClusterOptions(path)
	if err != nil {
		t.Fatalf("LoadClusterOptions: %v", err)
	}
	if len(c.Nodes) != 2 {
		t.Fatalf("expected 2 seed nodes, got %d", len(c.Nodes))
	}
	if c.ScaleReads != ScaleReadsSlave {
		t.Fatalf("expected scaleReads slave, got %v", c.ScaleReads)
	}
	if c.MaxRedirections != 16 {
		t.Fatalf("expected default max redirections 16, got %d", c.MaxRedirections)
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := writeTemp(t, "seeds.yaml", "- 10.0.0.1:6379\n- 10.0.0.2:6379\n")
	seeds, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(seeds) != 2 || seeds[0] != "10.0.0.1:6379" {
		t.Fatalf("unexpected seeds: %v", seeds)
	}
}

func TestEnableOfflineQueueOrDefault(t *testing.T) {
	var o Options
	if !o.EnableOfflineQueueOr(true) {
		t.Fatalf("expected default true to pass through when unset")
	}
	v := false
	o.EnableOfflineQueue = &v
	if o.EnableOfflineQueueOr(true) {
		t.Fatalf("expected explicit false to override default")
	}
}
