package cluster

import "testing"

func TestKeySlotHashTag(t *testing.T) {
	a := KeySlot("user:{1}:profile")
	b := KeySlot("user:{1}:settings")
	if a != b {
		t.Fatalf("expected matching hash tags to land on the same slot, got %d and %d", a, b)
	}
}

func TestKeySlotKnownVector(t *testing.T) {
	// Redis Cluster's own documented example: CRC16("123456789") == 0x31C3.
	got := crc16([]byte("123456789"))
	if got != 0x31C3 {
		t.Fatalf("crc16(%q) = %#x, want 0x31c3", "123456789", got)
	}
}

func TestSlotMapOwnerAndReassign(t *testing.T) {
	m := NewSlotMap()
	m.Set(0, 100, "a:6379", []string{"a-replica:6379"})
	if got := m.Owner(50); got != "a:6379" {
		t.Fatalf("expected a:6379, got %s", got)
	}
	m.Reassign(50, "b:6379")
	if got := m.Owner(50); got != "b:6379" {
		t.Fatalf("expected reassigned owner b:6379, got %s", got)
	}
	if got := m.Owner(99); got != "a:6379" {
		t.Fatalf("expected neighboring slot unaffected, got %s", got)
	}
}
