package respipe

import (
	"context"
	"testing"

	"redisx/internal/command"
)

func TestFIFOCompletesInOrder(t *testing.T) {
	f := New()
	c1 := command.New("get", "a")
	c2 := command.New("get", "b")
	f.Push(c1)
	f.Push(c2)

	f.CompleteHead("1")
	f.CompleteHead("2")

	v1, _ := c1.Wait(context.Background())
	v2, _ := c2.Wait(context.Background())
	if v1 != "1" || v2 != "2" {
		t.Fatalf("expected in-order completion, got %v %v", v1, v2)
	}
}

func TestDrainWithErrorFailsAll(t *testing.T) {
	f := New()
	c1 := command.New("get", "a")
	c2 := command.New("get", "b")
	f.Push(c1)
	f.Push(c2)

	f.DrainWithError(ConnClosedErr{})

	if _, err := c1.Wait(context.Background()); err == nil {
		t.Fatalf("expected error on c1")
	}
	if _, err := c2.Wait(context.Background()); err == nil {
		t.Fatalf("expected error on c2")
	}
	if f.Len() != 0 {
		t.Fatalf("expected empty FIFO after drain")
	}
}
