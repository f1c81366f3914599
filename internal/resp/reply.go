// Package resp implements the RESP2 wire codec: encoding outgoing
// command arrays and decoding incoming replies.
package resp

import "fmt"

// Type tags the five RESP2 reply shapes.
type Type byte

const (
	TypeSimpleString Type = '+'
	TypeError        Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'
)

// Reply is the RESP2 reply sum type: simple string, bulk string
// (nullable), integer, array (nullable, may nest), or error.
type Reply struct {
	Type Type

	Str string // set when Type == TypeSimpleString

	ErrKind string // first whitespace-delimited token of an error, e.g. "MOVED"
	ErrMsg  string // full error message, set when Type == TypeError

	Int int64 // set when Type == TypeInteger

	Bulk   []byte // set when Type == TypeBulkString and !BulkNull
	BulkNull bool

	Array   []Reply // set when Type == TypeArray and !ArrayNull
	ArrayNull bool
}

// IsNil reports whether the reply is the RESP2 null bulk string or
// null array.
func (r Reply) IsNil() bool {
	return (r.Type == TypeBulkString && r.BulkNull) || (r.Type == TypeArray && r.ArrayNull)
}

// IsError reports whether the reply is a server error reply.
func (r Reply) IsError() bool {
	return r.Type == TypeError
}

func (r Reply) String() string {
	switch r.Type {
	case TypeSimpleString:
		return r.Str
	case TypeError:
		return r.ErrMsg
	case TypeInteger:
		return fmt.Sprintf("%d", r.Int)
	case TypeBulkString:
		if r.BulkNull {
			return "<nil>"
		}
		return string(r.Bulk)
	case TypeArray:
		if r.ArrayNull {
			return "<nil>"
		}
		return fmt.Sprintf("%v", r.Array)
	default:
		return ""
	}
}

// NewSimpleString builds a simple-string reply, mainly for tests and
// in-process fakes.
func NewSimpleString(s string) Reply { return Reply{Type: TypeSimpleString, Str: s} }

// NewInteger builds an integer reply.
func NewInteger(n int64) Reply { return Reply{Type: TypeInteger, Int: n} }

// NewBulkString builds a non-null bulk string reply.
func NewBulkString(b []byte) Reply { return Reply{Type: TypeBulkString, Bulk: b} }

// NewNilBulkString builds the null bulk string reply.
func NewNilBulkString() Reply { return Reply{Type: TypeBulkString, BulkNull: true} }

// NewArray builds a non-null array reply.
func NewArray(items ...Reply) Reply { return Reply{Type: TypeArray, Array: items} }

// NewNilArray builds the null array reply.
func NewNilArray() Reply { return Reply{Type: TypeArray, ArrayNull: true} }

// NewError builds an error reply, splitting the leading token as Kind
// the way real Redis error replies do ("MOVED 123 host:port", "WRONGTYPE ...").
func NewError(msg string) Reply {
	kind := msg
	for i, c := range msg {
		if c == ' ' {
			kind = msg[:i]
			break
		}
	}
	return Reply{Type: TypeError, ErrKind: kind, ErrMsg: msg}
}
