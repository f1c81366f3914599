package cluster

import (
	"sync"

	"redisx/internal/conn"
	"redisx/internal/pool"
)

// Orchestrator satisfies pool.EventSink, turning a Router's pool
// lifecycle into the rest of the cluster-wide contract: a newly dialed
// node gets the caller's conn.EventSink attached so its own
// errors/status changes surface the same way a non-cluster Client's
// do, a removed node invalidates cached routings by nudging a slot-map
// refresh, and the pool draining to empty (every node removed, none
// replacing them) closes Done for ClusterClient to react to.
type Orchestrator struct {
	router *Router
	sink   conn.EventSink

	once sync.Once
	done chan struct{}
}

// NewOrchestrator builds an Orchestrator for router and installs it as
// the router's pool's EventSink. sink may be nil (NoopSink).
func NewOrchestrator(router *Router, sink conn.EventSink) *Orchestrator {
	if sink == nil {
		sink = conn.NoopSink{}
	}
	o := &Orchestrator{router: router, sink: sink, done: make(chan struct{})}
	router.pool.SetSink(o)
	return o
}

// Done closes once the router's pool has drained to empty.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// OnNodeAdded attaches the configured conn.EventSink to the
// newly-dialed connection at addr.
func (o *Orchestrator) OnNodeAdded(addr string, role pool.Role) {
	if c, ok := o.router.pool.Get(addr); ok {
		c.SetSink(o.sink)
	}
}

// OnNodeRemoved invalidates any routing decisions cached against addr
// by scheduling a slot-map refresh.
func (o *Orchestrator) OnNodeRemoved(addr string) {
	o.router.TriggerRefresh()
}

// OnDrain signals cluster-wide close once, the first time the pool
// empties entirely.
func (o *Orchestrator) OnDrain() {
	o.once.Do(func() { close(o.done) })
}

var _ pool.EventSink = (*Orchestrator)(nil)
