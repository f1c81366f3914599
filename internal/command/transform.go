package command

import (
	"strings"

	"redisx/internal/resp"
)

// TransformReply post-processes a raw decoded reply for specific
// command names. Most commands pass the reply
// through untouched (MULTI/EXEC among them — the pipeline engine
// applies per-sub-reply transforms itself, using the queued command's
// own name).
func TransformReply(name string, r resp.Reply) interface{} {
	switch strings.ToLower(name) {
	case "hgetall", "config get":
		return flattenPairs(r)
	case "info":
		return parseInfo(r)
	default:
		return Decode(r)
	}
}

// Decode converts a resp.Reply into a plain Go value: nil, string,
// []byte, int64, []interface{}, or error.
func Decode(r resp.Reply) interface{} {
	switch r.Type {
	case resp.TypeSimpleString:
		return r.Str
	case resp.TypeInteger:
		return r.Int
	case resp.TypeBulkString:
		if r.BulkNull {
			return nil
		}
		return string(r.Bulk)
	case resp.TypeArray:
		if r.ArrayNull {
			return nil
		}
		out := make([]interface{}, len(r.Array))
		for i, item := range r.Array {
			out[i] = Decode(item)
		}
		return out
	case resp.TypeError:
		return ReplyError{Kind: r.ErrKind, Message: r.ErrMsg}
	default:
		return nil
	}
}

// ReplyError is a decoded server error reply, kept distinct from a Go
// error value so TransformReply-produced maps/slices can carry it
// inline (e.g. within a pipeline's positional results) without callers
// type-asserting on the `error` interface prematurely.
type ReplyError struct {
	Kind    string
	Message string
}

func (e ReplyError) Error() string { return e.Message }

// TransformDecoded re-applies a command's post-processing to a value
// that has already passed through Decode, used by the pipeline engine
// to transform each queued command's own position inside an EXEC
// reply: by the time that reply reaches here, the raw resp.Reply
// backing the sub-reply array has already been consumed by the
// generic Decode that produced it.
func TransformDecoded(name string, v interface{}) interface{} {
	switch strings.ToLower(name) {
	case "hgetall", "config get":
		return flattenPairsDecoded(v)
	case "info":
		return parseInfoDecoded(v)
	default:
		return v
	}
}

func flattenPairsDecoded(v interface{}) interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return v
	}
	m := make(map[string]interface{}, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		k, ok := arr[i].(string)
		if !ok {
			continue
		}
		m[k] = arr[i+1]
	}
	return m
}

func parseInfoDecoded(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	out := make(map[string]string)
	for _, line := range strings.Split(s, "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		out[line[:idx]] = line[idx+1:]
	}
	return out
}

func flattenPairs(r resp.Reply) interface{} {
	if r.Type != resp.TypeArray || r.ArrayNull {
		return Decode(r)
	}
	m := make(map[string]interface{}, len(r.Array)/2)
	for i := 0; i+1 < len(r.Array); i += 2 {
		key := Decode(r.Array[i])
		ks, ok := key.(string)
		if !ok {
			continue
		}
		m[ks] = Decode(r.Array[i+1])
	}
	return m
}

func parseInfo(r resp.Reply) interface{} {
	if r.Type != resp.TypeBulkString || r.BulkNull {
		return Decode(r)
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(r.Bulk), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		out[line[:idx]] = line[idx+1:]
	}
	return out
}
