// Package pool tracks the live set of per-node Connections a
// ClusterClient's router holds open, keyed by address, with
// primary/replica views and rendezvous-hashed node sampling for read
// routing.
package pool

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"redisx/internal/conn"
)

// Role classifies a pooled node.
type Role int

const (
	Primary Role = iota
	Replica
)

// Factory dials a new Connection for addr. Supplied by the owning
// Cluster/Sentinel orchestrator so Pool stays free of dial policy.
type Factory func(addr string) *conn.Connection

// Pool is a keyed set of live connections plus a rendezvous-hashed
// sampler for spreading reads across replicas of a given primary.
type Pool struct {
	factory Factory
	sink    EventSink

	mu    sync.RWMutex
	nodes map[string]*entry // addr -> entry

	// samplers maps a primary's addr to a rendezvous hash over that
	// primary's own address plus its replicas', so repeated sample
	// calls for the same primary land on the same node as long as the
	// replica set hasn't changed (minimal disruption on topology
	// churn, the property rendezvous hashing is chosen for over plain
	// random pick).
	samplers map[string]*rendezvous.Table
}

type entry struct {
	addr string
	role Role
	conn *conn.Connection
}

// New returns an empty Pool that dials new nodes via factory.
func New(factory Factory) *Pool {
	return &Pool{
		factory:  factory,
		sink:     NoopSink{},
		nodes:    make(map[string]*entry),
		samplers: make(map[string]*rendezvous.Table),
	}
}

// SetSink installs an EventSink to receive +node/-node/drain
// notifications from this point on. Not safe to call concurrently
// with FindOrCreate/Drain/Close.
func (p *Pool) SetSink(sink EventSink) {
	if sink == nil {
		sink = NoopSink{}
	}
	p.sink = sink
}

// hashKey is the rendezvous hash function: xxhash of node+seed, the
// scheme go-rendezvous expects callers to supply.
func hashKey(node string, seed uint64) uint64 {
	h := xxhash.New()
	h.Write([]byte(node))
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> (8 * i))
	}
	h.Write(seedBytes[:])
	return h.Sum64()
}

// FindOrCreate returns the Connection for addr, dialing and
// registering one under role if it doesn't already exist.
func (p *Pool) FindOrCreate(addr string, role Role) *conn.Connection {
	p.mu.RLock()
	if e, ok := p.nodes[addr]; ok {
		p.mu.RUnlock()
		return e.conn
	}
	p.mu.RUnlock()

	p.mu.Lock()
	if e, ok := p.nodes[addr]; ok {
		p.mu.Unlock()
		return e.conn
	}
	c := p.factory(addr)
	p.nodes[addr] = &entry{addr: addr, role: role, conn: c}
	p.mu.Unlock()

	// Notified outside the lock so a sink that calls back into the pool
	// (e.g. the cluster orchestrator's Get(addr) to attach a listener to
	// the very connection that triggered +node) doesn't deadlock on p.mu.
	p.sink.OnNodeAdded(addr, role)
	return c
}

// Get returns the Connection registered for addr, if any.
func (p *Pool) Get(addr string) (*conn.Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.nodes[addr]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// All returns every pooled connection.
func (p *Pool) All() []*conn.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(p.nodes))
	for _, e := range p.nodes {
		out = append(out, e.conn)
	}
	return out
}

// Primaries returns every connection registered with role Primary.
func (p *Pool) Primaries() []*conn.Connection {
	return p.byRole(Primary)
}

// Replicas returns every connection registered with role Replica.
func (p *Pool) Replicas() []*conn.Connection {
	return p.byRole(Replica)
}

func (p *Pool) byRole(role Role) []*conn.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(p.nodes))
	for _, e := range p.nodes {
		if e.role == role {
			out = append(out, e.conn)
		}
	}
	return out
}

// SetReplicaSet registers primary's replica addresses for sampling,
// rebuilding the rendezvous table on every call.
func (p *Pool) SetReplicaSet(primary string, replicas []string) {
	members := append([]string{primary}, replicas...)
	sort.Strings(members)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.samplers[primary] = rendezvous.New(members, hashKey)
}

// Sample picks one address to serve a read for a key routed to
// primary, honoring the configured Role preference: Primary always
// returns primary itself; Replica consults the rendezvous table keyed
// on the read's routing key, falling back to primary when no replicas
// are registered.
func (p *Pool) Sample(primary string, role Role, routingKey string) string {
	if role == Primary {
		return primary
	}
	p.mu.RLock()
	table, ok := p.samplers[primary]
	p.mu.RUnlock()
	if !ok {
		return primary
	}
	return table.Get(routingKey)
}

// AnyPrimary picks a primary address for a command that addresses no
// key (§4.7 routing rule 1): a non-empty preference seeds a rendezvous
// pick over the current primary set, so repeated calls with the same
// preference land on the same node as long as membership is unchanged;
// an empty preference picks uniformly at random. Returns "" if no
// primary is registered yet.
func (p *Pool) AnyPrimary(preference string) string {
	p.mu.RLock()
	addrs := make([]string, 0, len(p.nodes))
	for addr, e := range p.nodes {
		if e.role == Primary {
			addrs = append(addrs, addr)
		}
	}
	p.mu.RUnlock()
	if len(addrs) == 0 {
		return ""
	}
	if preference == "" {
		return addrs[rand.Intn(len(addrs))]
	}
	sort.Strings(addrs) // stable member order so the rendezvous table is deterministic per call
	return rendezvous.New(addrs, hashKey).Get(preference)
}

// Drain removes every node not present in keep, disconnecting its
// Connection and emitting -node for each; if the pool empties as a
// result, drain fires too. Used after a topology refresh retires
// nodes that no longer appear in CLUSTER SLOTS / SENTINEL output.
func (p *Pool) Drain(keep map[string]struct{}) {
	p.mu.Lock()
	type removal struct {
		addr string
		conn *conn.Connection
	}
	var removed []removal
	for addr, e := range p.nodes {
		if _, ok := keep[addr]; !ok {
			removed = append(removed, removal{addr: addr, conn: e.conn})
			delete(p.nodes, addr)
			delete(p.samplers, addr)
		}
	}
	empty := len(p.nodes) == 0
	p.mu.Unlock()

	for _, r := range removed {
		r.conn.Disconnect()
		p.sink.OnNodeRemoved(r.addr)
	}
	if empty && len(removed) > 0 {
		p.sink.OnDrain()
	}
}

// Close disconnects every pooled connection and emits -node for each,
// followed by drain.
func (p *Pool) Close() {
	p.mu.Lock()
	nodes := p.nodes
	p.nodes = make(map[string]*entry)
	p.mu.Unlock()
	for addr, e := range nodes {
		e.conn.Disconnect()
		p.sink.OnNodeRemoved(addr)
	}
	p.sink.OnDrain()
}
