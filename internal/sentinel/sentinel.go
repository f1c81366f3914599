// Package sentinel implements primary/replica discovery against a
// Redis Sentinel fleet: iterate the configured sentinel addresses
// until one answers, resolve the named service's current primary (or
// a healthy replica), and merge newly gossiped sentinel addresses
// into the list Sentinel itself reports knowing about.
package sentinel

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"redisx/internal/command"
	"redisx/internal/conn"
	"redisx/internal/errs"
)

// Role selects which half of the service a Resolve call is after.
type Role int

const (
	RolePrimary Role = iota
	RoleReplica
)

// RetryStrategy mirrors conn.RetryStrategy's shape but governs a full
// pass over the sentinel list, not a single connection's reconnect.
type RetryStrategy func(attempt int) (delayMs int, ok bool)

func DefaultRetryStrategy(attempt int) (int, bool) {
	delay := attempt * 100
	if delay > 3000 {
		delay = 3000
	}
	return delay, true
}

// Options configures a Discoverer.
type Options struct {
	SentinelAddrs []string
	MasterName    string

	// UpdateSentinels merges newly gossiped sentinel addresses (from
	// SENTINEL sentinels) into SentinelAddrs, preserving order and
	// without duplicates.
	UpdateSentinels bool

	// NATMap rewrites a discovered "host:port" before it's dialed or
	// returned, for deployments where Sentinel reports addresses not
	// reachable from the client's network.
	NATMap map[string]string

	RetryStrategy RetryStrategy

	// Dial opens (or reuses) a Connection to a sentinel or a resolved
	// service node; supplied by the owning Client/ClusterClient so this
	// package stays free of dial policy, matching internal/pool.
	Dial func(addr string) *conn.Connection
}

func (o Options) withDefaults() Options {
	if o.RetryStrategy == nil {
		o.RetryStrategy = DefaultRetryStrategy
	}
	return o
}

// Discoverer resolves a named service's primary/replica addresses
// through a Sentinel fleet, gossiping in newly seen sentinels as it
// goes when UpdateSentinels is set.
type Discoverer struct {
	opts Options

	addrs    []string
	seenAddr map[uint64]struct{}
}

// New builds a Discoverer over the given sentinel addresses.
func New(opts Options) *Discoverer {
	opts = opts.withDefaults()
	d := &Discoverer{
		opts:     opts,
		addrs:    append([]string(nil), opts.SentinelAddrs...),
		seenAddr: make(map[uint64]struct{}, len(opts.SentinelAddrs)),
	}
	for _, a := range d.addrs {
		d.seenAddr[addrHash(a)] = struct{}{}
	}
	return d
}

// Resolve returns the current address for role, trying each known
// sentinel in order until one answers. On success with role ==
// RolePrimary it also cross-checks SENTINEL sentinels for gossip
// merge (when enabled); this is best-effort and never fails Resolve.
func (d *Discoverer) Resolve(ctx context.Context, role Role) (string, error) {
	var lastErr error
	for _, addr := range d.addrs {
		c := d.opts.Dial(addr)
		target, err := d.resolveFrom(ctx, c, role)
		if err != nil {
			lastErr = err
			continue
		}
		return target, nil
	}
	if lastErr == nil {
		lastErr = errs.New(errs.KindClusterAllFailed, "no sentinel addresses configured")
	}
	return "", errs.Wrap(errs.KindClusterAllFailed, lastErr)
}

// ResolveWithRetry calls Resolve repeatedly, sleeping between full
// passes over the sentinel list per RetryStrategy, until it succeeds,
// ctx is done, or the strategy says to stop.
func (d *Discoverer) ResolveWithRetry(ctx context.Context, role Role) (string, error) {
	attempt := 0
	for {
		addr, err := d.Resolve(ctx, role)
		if err == nil {
			return addr, nil
		}
		attempt++
		delayMs, ok := d.opts.RetryStrategy(attempt)
		if !ok {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}
}

func (d *Discoverer) resolveFrom(ctx context.Context, c *conn.Connection, role Role) (string, error) {
	if role == RolePrimary {
		addr, err := d.getMasterAddr(ctx, c)
		if err != nil {
			return "", err
		}
		if d.opts.UpdateSentinels {
			d.mergeSentinels(ctx, c)
		}
		return d.applyNAT(addr), nil
	}
	addrs, err := d.getReplicaAddrs(ctx, c)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errs.New(errs.KindClusterAllFailed, "no healthy replicas reported")
	}
	return d.applyNAT(addrs[0]), nil
}

func (d *Discoverer) getMasterAddr(ctx context.Context, c *conn.Connection) (string, error) {
	cmd := command.New("sentinel", "get-master-addr-by-name", d.opts.MasterName)
	v, err := submitAndWait(ctx, c, cmd)
	if err != nil {
		return "", err
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) < 2 {
		return "", errs.New(errs.KindProtocol, "unexpected SENTINEL get-master-addr-by-name reply shape")
	}
	host, _ := pair[0].(string)
	port, _ := pair[1].(string)
	if host == "" || port == "" {
		return "", errs.New(errs.KindProtocol, "empty master address from sentinel")
	}
	return host + ":" + port, nil
}

// getReplicaAddrs issues SENTINEL slaves and filters out any replica
// whose flags report it down (s_down/o_down/disconnected).
func (d *Discoverer) getReplicaAddrs(ctx context.Context, c *conn.Connection) ([]string, error) {
	cmd := command.New("sentinel", "slaves", d.opts.MasterName)
	v, err := submitAndWait(ctx, c, cmd)
	if err != nil {
		return nil, err
	}
	entries, ok := v.([]interface{})
	if !ok {
		return nil, errs.New(errs.KindProtocol, "unexpected SENTINEL slaves reply shape")
	}
	var out []string
	for _, raw := range entries {
		fields, ok := raw.([]interface{})
		if !ok {
			continue
		}
		kv := fieldsToMap(fields)
		if isDownFlag(kv["flags"]) {
			continue
		}
		ip, port := kv["ip"], kv["port"]
		if ip == "" || port == "" {
			continue
		}
		out = append(out, ip+":"+port)
	}
	return out, nil
}

// mergeSentinels folds SENTINEL sentinels' reported addresses into
// d.addrs, deduplicating by an xxhash of the address so the seen-set
// stays cheap across repeated resolves against a large fleet.
func (d *Discoverer) mergeSentinels(ctx context.Context, c *conn.Connection) {
	cmd := command.New("sentinel", "sentinels", d.opts.MasterName)
	v, err := submitAndWait(ctx, c, cmd)
	if err != nil {
		return
	}
	entries, ok := v.([]interface{})
	if !ok {
		return
	}
	var added []string
	for _, raw := range entries {
		fields, ok := raw.([]interface{})
		if !ok {
			continue
		}
		kv := fieldsToMap(fields)
		ip, port := kv["ip"], kv["port"]
		if ip == "" || port == "" {
			continue
		}
		addr := ip + ":" + port
		key := addrHash(addr)
		if _, ok := d.seenAddr[key]; ok {
			continue
		}
		d.seenAddr[key] = struct{}{}
		added = append(added, addr)
	}
	if len(added) > 0 {
		sort.Strings(added)
		d.addrs = append(d.addrs, added...)
	}
}

func (d *Discoverer) applyNAT(addr string) string {
	if d.opts.NATMap == nil {
		return addr
	}
	if mapped, ok := d.opts.NATMap[addr]; ok {
		return mapped
	}
	return addr
}

func fieldsToMap(fields []interface{}) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		k, _ := fields[i].(string)
		v, _ := fields[i+1].(string)
		m[k] = v
	}
	return m
}

func isDownFlag(flags string) bool {
	return strings.Contains(flags, "s_down") ||
		strings.Contains(flags, "o_down") ||
		strings.Contains(flags, "disconnected")
}

func submitAndWait(ctx context.Context, c *conn.Connection, cmd *command.Command) (interface{}, error) {
	if err := c.Submit(cmd); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return cmd.Wait(waitCtx)
}

func addrHash(addr string) uint64 {
	return xxhash.Sum64String(addr)
}
