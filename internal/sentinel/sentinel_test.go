package sentinel

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"redisx/internal/conn"
)

func scriptedSentinel(t *testing.T, respond func(args []string) string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		r := bufio.NewReader(nc)
		w := bufio.NewWriter(nc)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			w.WriteString(respond(args))
			w.Flush()
			select {
			case <-done:
				return
			default:
			}
		}
	}()
	return ln.Addr().String(), func() { close(done); ln.Close() }
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	var n int
	fmt.Sscanf(line[1:], "%d", &n)
	args := make([]string, n)
	for i := 0; i < n; i++ {
		hdr, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		hdr = strings.TrimRight(hdr, "\r\n")
		var size int
		fmt.Sscanf(hdr[1:], "%d", &size)
		buf := make([]byte, size+2)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func bulk(s string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s)
}

func TestResolvePrimary(t *testing.T) {
	addr, stop := scriptedSentinel(t, func(args []string) string {
		if strings.EqualFold(args[1], "get-master-addr-by-name") {
			return "*2\r\n" + bulk("10.0.0.5") + bulk("6379")
		}
		return "*0\r\n"
	})
	defer stop()

	d := New(Options{
		SentinelAddrs: []string{addr},
		MasterName:    "mymaster",
		Dial: func(a string) *conn.Connection {
			c := conn.New(conn.Options{Addr: a, EnableReadyCheck: false})
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				t.Fatalf("dial: %v", err)
			}
			return c
		},
	})

	got, err := d.Resolve(context.Background(), RolePrimary)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "10.0.0.5:6379" {
		t.Fatalf("expected 10.0.0.5:6379, got %s", got)
	}
}

func TestResolveFallsThroughDeadSentinels(t *testing.T) {
	addr, stop := scriptedSentinel(t, func(args []string) string {
		if strings.EqualFold(args[1], "get-master-addr-by-name") {
			return "*2\r\n" + bulk("10.0.0.9") + bulk("6380")
		}
		return "*0\r\n"
	})
	defer stop()

	d := New(Options{
		SentinelAddrs: []string{"127.0.0.1:1", addr},
		MasterName:    "mymaster",
		Dial: func(a string) *conn.Connection {
			c := conn.New(conn.Options{Addr: a, EnableReadyCheck: false, ConnectTimeout: 200 * time.Millisecond})
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			c.Connect(ctx)
			return c
		},
	})

	got, err := d.Resolve(context.Background(), RolePrimary)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "10.0.0.9:6380" {
		t.Fatalf("expected fallback to the second sentinel, got %s", got)
	}
}
