package command

import "testing"

func TestKeysFixed(t *testing.T) {
	keys := Keys("get", []interface{}{"foo"})
	if len(keys) != 1 || keys[0] != "foo" {
		t.Fatalf("expected [foo], got %v", keys)
	}
}

func TestKeysVariadic(t *testing.T) {
	keys := Keys("mset", []interface{}{"a", "1", "b", "2"})
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected [a b], got %v", keys)
	}
}

func TestKeysEvalStyle(t *testing.T) {
	keys := Keys("eval", []interface{}{"return 1", 2, "k1", "k2", "arg1"})
	if len(keys) != 2 || keys[0] != "k1" || keys[1] != "k2" {
		t.Fatalf("expected [k1 k2], got %v", keys)
	}
}

func TestKeysNone(t *testing.T) {
	keys := Keys("ping", nil)
	if keys != nil {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestLookupFlagsUnknownIsCustom(t *testing.T) {
	f := LookupFlags("mycustomcmd")
	if !f.IsCustom {
		t.Fatalf("expected unknown command to be classified custom")
	}
}

func TestLookupFlagsSubscribe(t *testing.T) {
	f := LookupFlags("subscribe")
	if !f.EntersSubscriberMode || !f.ValidInSubscriberMode {
		t.Fatalf("expected subscribe flags, got %+v", f)
	}
}
