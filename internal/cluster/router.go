package cluster

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"redisx/internal/command"
	"redisx/internal/conn"
	"redisx/internal/errs"
	"redisx/internal/pool"
)

// Options configures a Router.
type Options struct {
	SeedAddrs       []string
	MaxRedirections int
	RetryDelayMoved time.Duration
	RetryDelayAsk   time.Duration
	ScaleReads      ScaleReads

	Dial func(addr string) *conn.Connection

	// RefreshInterval bounds how often a background refresh may run;
	// TriggerRefresh calls between ticks coalesce onto the next one.
	RefreshInterval time.Duration
}

// ScaleReads selects which role serves read-only commands.
type ScaleReads int

const (
	ScaleReadsMaster ScaleReads = iota
	ScaleReadsSlave
	ScaleReadsAll
)

// Router owns the slot map and connection pool, dispatching commands
// to the correct node and following MOVED/ASK/TRYAGAIN/CLUSTERDOWN
// redirections up to MaxRedirections.
type Router struct {
	opts Options
	pool *pool.Pool

	mu     sync.RWMutex
	slots  *SlotMap
	readRR uint64 // round-robin counter for ScaleReadsAll

	refreshLimiter rate.Sometimes
	refreshCh      chan struct{}
}

// New builds a Router and dials nothing yet; call Bootstrap to fetch
// the initial topology from the seed nodes.
func New(opts Options) *Router {
	if opts.MaxRedirections <= 0 {
		opts.MaxRedirections = 16
	}
	r := &Router{
		opts:      opts,
		slots:     NewSlotMap(),
		refreshCh: make(chan struct{}, 1),
	}
	r.pool = pool.New(func(addr string) *conn.Connection {
		return opts.Dial(addr)
	})
	return r
}

// Bootstrap queries CLUSTER SLOTS on each seed address in turn until
// one answers, then installs the resulting slot map. Dial is expected
// to start each Connection's Connect sequence itself (eagerly or
// lazily); Bootstrap relies on Submit's offline queue to hold the
// CLUSTER SLOTS command until the connection becomes ready.
func (r *Router) Bootstrap(ctx context.Context) error {
	var lastErr error
	for _, addr := range r.opts.SeedAddrs {
		c := r.pool.FindOrCreate(addr, pool.Primary)
		if err := r.refreshFrom(ctx, c); err != nil {
			if isClusterSupportDisabled(err.Error()) {
				r.installStandalone(addr)
				return nil
			}
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errs.New(errs.KindClusterAllFailed, "no seed addresses configured")
	}
	return errs.Wrap(errs.KindClusterAllFailed, lastErr)
}

// installStandalone treats addr as the sole node owning every slot,
// for a server that answers CLUSTER SLOTS with "cluster support
// disabled" (grounded on the teacher's ClusterClient.Connect fallback).
func (r *Router) installStandalone(addr string) {
	m := NewSlotMap()
	m.Set(0, NumSlots-1, addr, nil)
	r.mu.Lock()
	r.slots = m
	r.mu.Unlock()
	r.pool.FindOrCreate(addr, pool.Primary)
}

func (r *Router) refreshFrom(ctx context.Context, c *conn.Connection) error {
	cmd := command.New("cluster", "slots")
	if err := c.Submit(cmd); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := cmd.Wait(waitCtx)
	if err != nil {
		return err
	}
	return r.installFromValue(v)
}

func (r *Router) installFromValue(v interface{}) error {
	nodes, ok := clusterSlotsFromResult(v)
	if !ok {
		return errs.New(errs.KindProtocol, "unexpected CLUSTER SLOTS reply shape")
	}
	newMap := BuildSlotMap(nodes)
	r.mu.Lock()
	r.slots = newMap
	r.mu.Unlock()
	keep := make(map[string]struct{}, len(nodes)*2)
	for _, n := range nodes {
		keep[n.Primary] = struct{}{}
		r.pool.FindOrCreate(n.Primary, pool.Primary)
		r.pool.SetReplicaSet(n.Primary, n.Replicas)
		for _, rep := range n.Replicas {
			keep[rep] = struct{}{}
			r.pool.FindOrCreate(rep, pool.Replica)
		}
	}
	r.pool.Drain(keep)
	return nil
}

// TriggerRefresh schedules a best-effort topology refresh, coalescing
// concurrent callers onto a single in-flight refresh the way a
// throttled reload channel does.
func (r *Router) TriggerRefresh() {
	select {
	case r.refreshCh <- struct{}{}:
	default:
	}
}

// RunRefreshLoop blocks, periodically refreshing the topology from a
// random live primary until ctx is done. TriggerRefresh wakes it early.
func (r *Router) RunRefreshLoop(ctx context.Context) {
	interval := r.opts.RefreshInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	r.refreshLimiter.Interval = interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.refreshCh:
			r.refreshLimiter.Do(func() { r.refreshOnce(ctx) })
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *Router) refreshOnce(ctx context.Context) {
	for _, c := range r.pool.Primaries() {
		if c.Status().IsReady() {
			if err := r.refreshFrom(ctx, c); err == nil {
				return
			}
		}
	}
}

// Dispatch routes cmd to the node owning its key(s), following
// redirections until the reply resolves or MaxRedirections is spent.
func (r *Router) Dispatch(ctx context.Context, cmd *command.Command) (interface{}, error) {
	keys := command.Keys(cmd.Name, cmd.Args)

	// slot stays -1 for a command that addresses no key: there is no
	// single slot to track for a later MOVED-driven Reassign, and node
	// selection below picks any primary instead of a slot owner.
	slot := -1
	if len(keys) > 0 {
		var err error
		slot, err = r.slotForKeys(keys)
		if err != nil {
			return nil, err
		}
	}

	role := pool.Primary
	if cmd.Flags.IsReadonly && !cmd.Flags.IsWrite {
		role = r.readRole()
	}

	node := cmd.PreferNode
	if node == "" && slot >= 0 {
		r.mu.RLock()
		primary := r.slots.Owner(slot)
		r.mu.RUnlock()
		if primary == "" {
			return nil, errs.New(errs.KindClusterAllFailed, "no node owns the target slot")
		}
		node = r.pool.Sample(primary, role, routingKeyOf(keys))
	} else if node == "" {
		node = r.pool.AnyPrimary(cmd.RoutingPreference)
		if node == "" {
			return nil, errs.New(errs.KindClusterAllFailed, "no primary node available")
		}
	}

	redirections := r.opts.MaxRedirections
	if cmd.RemainingRedirections > 0 {
		redirections = cmd.RemainingRedirections
	}

	for attempt := 0; attempt < redirections; attempt++ {
		c := r.pool.FindOrCreate(node, pool.Primary)
		if cmd.Asking {
			asking := command.New("asking")
			asking.Ignore = true
			if err := c.Submit(asking); err == nil {
				waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				asking.Wait(waitCtx)
				cancel()
			}
		}
		if err := c.Submit(cmd); err != nil {
			return nil, err
		}
		v, err := cmd.Wait(ctx)
		rerr, isClusterErr := err.(*errs.Error)
		if err == nil || !isClusterErr || rerr.Kind != errs.KindReply {
			return v, err
		}

		switch rerr.Reply {
		case errs.ReplyMoved:
			if slot >= 0 {
				r.mu.Lock()
				r.slots.Reassign(slot, rerr.Target)
				r.mu.Unlock()
			}
			r.TriggerRefresh()
			node = rerr.Target
			cmd.Asking = false
		case errs.ReplyAsk:
			node = rerr.Target
			cmd.Asking = true
		case errs.ReplyTryAgain:
			time.Sleep(r.tryAgainDelay())
			cmd.Asking = false
		case errs.ReplyClusterDown:
			time.Sleep(r.tryAgainDelay())
			cmd.Asking = false
		default:
			return v, err
		}
	}
	return nil, errs.New(errs.KindMaxRedirections, "exceeded max_redirections")
}

func (r *Router) tryAgainDelay() time.Duration {
	if r.opts.RetryDelayAsk > 0 {
		return r.opts.RetryDelayAsk
	}
	return 20 * time.Millisecond
}

func (r *Router) readRole() pool.Role {
	switch r.opts.ScaleReads {
	case ScaleReadsSlave:
		return pool.Replica
	case ScaleReadsAll:
		n := atomic.AddUint64(&r.readRR, 1)
		if n%2 == 0 {
			return pool.Primary
		}
		return pool.Replica
	default:
		return pool.Primary
	}
}

// slotForKeys computes the single slot a command's non-empty keys all
// hash to. Callers must not invoke this for a keyless command; see
// Dispatch/planBatch, which route those via Pool.AnyPrimary instead.
func (r *Router) slotForKeys(keys []string) (int, error) {
	slot := KeySlot(keys[0])
	for _, k := range keys[1:] {
		if KeySlot(k) != slot {
			return 0, errs.New(errs.KindCrossSlot, "command keys hash to different slots")
		}
	}
	return slot, nil
}

func routingKeyOf(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// clusterSlotsFromResult adapts the already-decoded reply value a
// Command carries (produced by command.TransformReply's default
// Decode path for "cluster slots") back into NodeInfo rows. CLUSTER
// SLOTS isn't one of TransformReply's special-cased names, so the
// value here is the generic []interface{} tree Decode produces;
// reparsing it against resp.Reply shapes is unnecessary because
// Decode already walked the same array-of-arrays structure — we just
// need it typed.
func clusterSlotsFromResult(v interface{}) ([]NodeInfo, bool) {
	rows, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]NodeInfo, 0, len(rows))
	for _, rawRow := range rows {
		row, ok := rawRow.([]interface{})
		if !ok || len(row) < 3 {
			continue
		}
		start, ok1 := row[0].(int64)
		end, ok2 := row[1].(int64)
		if !ok1 || !ok2 {
			continue
		}
		info := NodeInfo{StartSlot: int(start), EndSlot: int(end)}
		for i := 2; i < len(row); i++ {
			triple, ok := row[i].([]interface{})
			if !ok || len(triple) < 2 {
				continue
			}
			host, ok1 := triple[0].(string)
			port, ok2 := triple[1].(int64)
			if !ok1 || !ok2 {
				continue
			}
			addr := host + ":" + strconv.Itoa(int(port))
			if i == 2 {
				info.Primary = addr
			} else {
				info.Replicas = append(info.Replicas, addr)
			}
		}
		if info.Primary != "" {
			out = append(out, info)
		}
	}
	return out, true
}

// Close disconnects every pooled node.
func (r *Router) Close() {
	r.pool.Close()
}

func isClusterSupportDisabled(msg string) bool {
	return strings.Contains(msg, "cluster support disabled")
}
