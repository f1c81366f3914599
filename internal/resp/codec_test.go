package resp

import (
	"bufio"
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []interface{}{"SET", "foo", "bar", 42}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "*4\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$2\r\n42\r\n"
	if buf.String() != want {
		t.Fatalf("encode mismatch:\ngot  %q\nwant %q", buf.String(), want)
	}

	dec := NewDecoder(bufio.NewReader(&buf))
	reply, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Type != TypeArray || len(reply.Array) != 4 {
		t.Fatalf("expected 4-element array, got %+v", reply)
	}
	if string(reply.Array[0].Bulk) != "SET" {
		t.Fatalf("expected SET, got %q", reply.Array[0].Bulk)
	}
}

func TestDecodeSimpleTypes(t *testing.T) {
	cases := []struct {
		wire string
		want Reply
	}{
		{"+OK\r\n", NewSimpleString("OK")},
		{":1000\r\n", NewInteger(1000)},
		{"$-1\r\n", NewNilBulkString()},
		{"$5\r\nhello\r\n", NewBulkString([]byte("hello"))},
		{"*-1\r\n", NewNilArray()},
		{"*0\r\n", NewArray()},
	}
	for _, c := range cases {
		dec := NewDecoder(bufio.NewReader(bytes.NewBufferString(c.wire)))
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("decode %q: %v", c.wire, err)
		}
		if got.Type != c.want.Type {
			t.Fatalf("decode %q: type mismatch got %v want %v", c.wire, got.Type, c.want.Type)
		}
	}
}

func TestDecodeNestedArray(t *testing.T) {
	wire := "*2\r\n*1\r\n:1\r\n$-1\r\n"
	dec := NewDecoder(bufio.NewReader(bytes.NewBufferString(wire)))
	reply, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reply.Array) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(reply.Array))
	}
	if reply.Array[0].Array[0].Int != 1 {
		t.Fatalf("expected nested integer 1, got %+v", reply.Array[0])
	}
	if !reply.Array[1].BulkNull {
		t.Fatalf("expected null bulk string, got %+v", reply.Array[1])
	}
}

func TestDecodeError(t *testing.T) {
	dec := NewDecoder(bufio.NewReader(bytes.NewBufferString("-MOVED 1234 127.0.0.1:7001\r\n")))
	reply, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reply.IsError() || reply.ErrKind != "MOVED" {
		t.Fatalf("expected MOVED error, got %+v", reply)
	}
}

func TestDecodeProtocolError(t *testing.T) {
	dec := NewDecoder(bufio.NewReader(bytes.NewBufferString("?nonsense\r\n")))
	_, err := dec.Decode()
	if err == nil {
		t.Fatalf("expected protocol error")
	}
}
