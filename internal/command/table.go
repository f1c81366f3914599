package command

import "strings"

// keySpec describes how to extract key arguments from a command's
// argument list.
type keySpec struct {
	// none means the command addresses no keys (cluster routing then
	// picks any primary).
	none bool

	// evalStyle means args[0] is the script (or function) name, args[1]
	// is a numeric key count and the following N arguments are keys
	// (EVAL/EVALSHA/FCALL-style).
	evalStyle bool

	// fixed, when evalStyle is false and >= 0, is the number of
	// leading arguments that are keys (usually 1). A value of -1 means
	// "all remaining arguments are keys" (MSET-like, handled by step).
	fixed int

	// step is the stride between keys when fixed == -1, e.g. MSET
	// alternates key/value so step == 2.
	step int
}

type entry struct {
	flags Flags
	keys  keySpec
}

var table = map[string]entry{
	"get":      {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"set":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"setnx":    {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"setex":    {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"getset":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"getdel":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"append":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"incr":     {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"incrby":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"decr":     {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"decrby":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"strlen":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"del":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: -1, step: 1}},
	"unlink":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: -1, step: 1}},
	"exists":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: -1, step: 1}},
	"expire":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"pexpire":  {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"ttl":      {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"pttl":     {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"type":     {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"mget":     {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: -1, step: 1}},
	"mset":     {flags: Flags{IsWrite: true}, keys: keySpec{fixed: -1, step: 2}},
	"msetnx":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: -1, step: 2}},

	"hget":    {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hset":    {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"hmget":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hmset":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"hdel":    {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"hgetall": {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hkeys":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hvals":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hlen":    {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"hincrby": {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},

	"lpush":  {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"rpush":  {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"lpop":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"rpop":   {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"lrange": {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"llen":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},

	"sadd":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"srem":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"smembers":  {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"sismember": {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},

	"zadd":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"zrange":    {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},
	"zrem":      {flags: Flags{IsWrite: true}, keys: keySpec{fixed: 1}},
	"zscore":    {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: 1}},

	"eval":    {flags: Flags{IsWrite: true}, keys: keySpec{evalStyle: true}},
	"evalsha": {flags: Flags{IsWrite: true}, keys: keySpec{evalStyle: true}},
	"fcall":   {flags: Flags{IsWrite: true}, keys: keySpec{evalStyle: true}},

	"ping":      {flags: Flags{IsReadonly: true, ValidInSubscriberMode: true}, keys: keySpec{none: true}},
	"echo":      {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"auth":      {flags: Flags{}, keys: keySpec{none: true}},
	"select":    {flags: Flags{}, keys: keySpec{none: true}},
	"client":    {flags: Flags{}, keys: keySpec{none: true}},
	"info":      {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"command":   {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"cluster":   {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"sentinel":  {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"readonly":  {flags: Flags{}, keys: keySpec{none: true}},
	"readwrite": {flags: Flags{}, keys: keySpec{none: true}},
	"asking":    {flags: Flags{}, keys: keySpec{none: true}},
	"scan":      {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"dbsize":    {flags: Flags{IsReadonly: true}, keys: keySpec{none: true}},
	"flushdb":   {flags: Flags{IsWrite: true}, keys: keySpec{none: true}},
	"flushall":  {flags: Flags{IsWrite: true}, keys: keySpec{none: true}},
	"wait":      {flags: Flags{}, keys: keySpec{none: true}},
	"shutdown":  {flags: Flags{WillDisconnect: true, ValidInMonitorMode: true}, keys: keySpec{none: true}},
	"role":      {flags: Flags{IsReadonly: true, ValidInMonitorMode: true}, keys: keySpec{none: true}},

	"subscribe":    {flags: Flags{EntersSubscriberMode: true, ValidInSubscriberMode: true}, keys: keySpec{none: true}},
	"unsubscribe":  {flags: Flags{ExitsSubscriberMode: true, ValidInSubscriberMode: true}, keys: keySpec{none: true}},
	"psubscribe":   {flags: Flags{EntersSubscriberMode: true, ValidInSubscriberMode: true}, keys: keySpec{none: true}},
	"punsubscribe": {flags: Flags{ExitsSubscriberMode: true, ValidInSubscriberMode: true}, keys: keySpec{none: true}},
	"publish":      {flags: Flags{IsWrite: true}, keys: keySpec{none: true}},

	"multi":   {flags: Flags{ValidInMonitorMode: true}, keys: keySpec{none: true}},
	"exec":    {flags: Flags{}, keys: keySpec{none: true}},
	"discard": {flags: Flags{}, keys: keySpec{none: true}},
	"watch":   {flags: Flags{IsReadonly: true}, keys: keySpec{fixed: -1, step: 1}},
	"unwatch": {flags: Flags{}, keys: keySpec{none: true}},

	"monitor": {flags: Flags{ValidInMonitorMode: true}, keys: keySpec{none: true}},

	// antirez why you do this: BITOP's first argument is the operator,
	// not a key. Modeled explicitly rather than folded into the
	// generic fixed/step scheme (mirrors the BITOP special-case in
	// _examples/other_examples/234cb82c_jinycoo-radix__action.go.go).
	"bitop": {flags: Flags{IsWrite: true}, keys: keySpec{fixed: -1, step: 1}},
}

// LookupFlags returns the classification flags for name, defaulting
// unknown commands to a conservative custom/write classification.
func LookupFlags(name string) Flags {
	e, ok := table[strings.ToLower(name)]
	if !ok {
		return Flags{IsWrite: true, IsCustom: true}
	}
	return e.flags
}

// Keys extracts the routing key arguments from a command's arguments,
// per the static table. BITOP's operator argument is skipped (see the
// "bitop" table entry's step == 1 over args[1:]).
func Keys(name string, args []interface{}) []string {
	spec, ok := table[strings.ToLower(name)]
	if !ok {
		// Unknown/custom commands: conservatively assume the first
		// argument, if any, is a key.
		if len(args) > 0 {
			if k := argKey(args[0]); k != "" {
				return []string{k}
			}
		}
		return nil
	}
	if spec.keys.none || len(args) == 0 {
		return nil
	}
	if strings.EqualFold(name, "bitop") {
		if len(args) < 2 {
			return nil
		}
		return keysFrom(args[1:], 1)
	}
	if spec.keys.evalStyle {
		if len(args) < 2 {
			return nil
		}
		n := toInt(args[1])
		if n <= 0 || 2+n > len(args) {
			return nil
		}
		return keysFrom(args[2:2+n], 1)
	}
	if spec.keys.fixed == -1 {
		step := spec.keys.step
		if step <= 0 {
			step = 1
		}
		var keys []string
		for i := 0; i < len(args); i += step {
			if k := argKey(args[i]); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}
	n := spec.keys.fixed
	if n > len(args) {
		n = len(args)
	}
	return keysFrom(args[:n], 1)
}

func keysFrom(args []interface{}, step int) []string {
	var keys []string
	for i := 0; i < len(args); i += step {
		if k := argKey(args[i]); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func argKey(a interface{}) string {
	switch v := a.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toInt(a interface{}) int {
	switch v := a.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n := 0
		for _, c := range v {
			if c < '0' || c > '9' {
				return 0
			}
			n = n*10 + int(c-'0')
		}
		return n
	default:
		return 0
	}
}
