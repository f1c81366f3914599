package cluster

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"redisx/internal/command"
	"redisx/internal/conn"
)

// scriptedServer accepts one connection and answers each command with
// whatever respond returns, given the command's arguments.
func scriptedServer(t *testing.T, respond func(args []string) string) (addr string, stop func()) {
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

func dialer(t *testing.T) func(addr string) *conn.Connection {
	return func(addr string) *conn.Connection {
		c := conn.New(conn.Options{Addr: addr, EnableReadyCheck: false})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("dial %s: %v", addr, err)
		}
		return c
	}
}

func clusterSlotsReplyFor(addr string) string {
	host, port := splitHostPort(addr)
	return fmt.Sprintf(
		"*1\r\n*3\r\n:0\r\n:16383\r\n*2\r\n$%d\r\n%s\r\n:%s\r\n",
		len(host), host, port,
	)
}

func splitHostPort(addr string) (string, string) {
	i := strings.LastIndex(addr, ":")
	return addr[:i], addr[i+1:]
}

func TestBootstrapInstallsSlotMap(t *testing.T) {
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
	if owner := r.slots.Owner(0); owner == "" {
		t.Fatalf("expected slot 0 to have an owner after bootstrap")
	}
}

func TestDispatchFollowsMoved(t *testing.T) {
	targetAddr, stopTarget := scriptedServer(t, func(args []string) string {
		return "+OK\r\n"
	})
	defer stopTarget()

	var sourceAddr string
	movedOnce := false
	server, stopSource := scriptedServer(t, func(args []string) string {
		if strings.EqualFold(args[0], "cluster") {
			return clusterSlotsReplyFor(sourceAddr)
		}
		if strings.EqualFold(args[0], "get") && !movedOnce {
			movedOnce = true
			return fmt.Sprintf("-MOVED 0 %s\r\n", targetAddr)
		}
		return "+OK\r\n"
	})
	sourceAddr = server
	defer stopSource()

	r := New(Options{SeedAddrs: []string{sourceAddr}, Dial: dialer(t)})
	if err := r.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cmd := command.New("get", "foo")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := r.Dispatch(ctx, cmd)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if v != "OK" {
		t.Fatalf("expected OK after MOVED retry, got %v", v)
	}
}
