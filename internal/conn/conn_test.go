package conn

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"redisx/internal/command"
)

// fakeServer accepts one connection and answers every request with
// "+OK\r\n", echoing nothing else. Good enough to exercise Connect's
// ready sequence and Submit's write/FIFO path without a real server.
func fakeServer(t *testing.T) (addr string, stop func()) {
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
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			// Consume the rest of the command array, assuming every
			// arg is a bulk string; just re-read lines until we've
			// consumed len+1 lines per bulk arg is unnecessary here
			// since each Submit call in these tests sends one-arg
			// commands, so one bulk header+payload line pair remains.
			for i := 0; i < 2; i++ {
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
			}
			w.WriteString("+OK\r\n")
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

func TestConnectReachesReady(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	c := New(Options{Addr: addr, EnableReadyCheck: false})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.Status() != StatusReady {
		t.Fatalf("expected StatusReady, got %v", c.Status())
	}
}

func TestSubmitQueuesWhileNotReady(t *testing.T) {
	c := New(Options{Addr: "127.0.0.1:0", EnableOfflineQueue: true}.WithDefaults())
	cmd := command.New("get", "foo")
	if err := c.Submit(cmd); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.mu.Lock()
	n := len(c.offlineQueue)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 queued command, got %d", n)
	}
}

func TestSubmitFailsClosedWithoutOfflineQueue(t *testing.T) {
	c := New(Options{Addr: "127.0.0.1:0", EnableOfflineQueue: false}.WithDefaults())
	cmd := command.New("get", "foo")
	if err := c.Submit(cmd); err == nil {
		t.Fatalf("expected error when offline queue disabled and not ready")
	}
}
