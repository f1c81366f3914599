package redisx

import (
	"context"
	"time"

	"redisx/internal/cluster"
	"redisx/internal/command"
	"redisx/internal/config"
	"redisx/internal/conn"
	"redisx/internal/pipeline"
)

// ClusterOptions configures a ClusterClient: the seed node addresses
// plus per-node connection settings applied to every dialed node.
type ClusterOptions struct {
	SeedAddrs   []string
	ConnOptions Options

	MaxRedirections int
	ScaleReads      cluster.ScaleReads
	RefreshInterval time.Duration

	// Sink receives status/error/message notifications from every node
	// connection the cluster dials, attached as each +node joins the
	// pool (see internal/cluster.Orchestrator, §4.8's +node/-node/drain
	// contract).
	Sink conn.EventSink
}

// ClusterClient is a cluster-aware Commander: commands route to the
// node owning their key(s), following MOVED/ASK/TRYAGAIN/CLUSTERDOWN
// redirections, with pipeline/multi/exec lifted onto whole batches.
type ClusterClient struct {
	router       *cluster.Router
	orchestrator *cluster.Orchestrator
	cancel       context.CancelFunc
}

// NewCluster bootstraps a ClusterClient from opts.SeedAddrs and starts
// its background slot-map refresh loop.
func NewCluster(ctx context.Context, opts ClusterOptions) (*ClusterClient, error) {
	return bootstrapCluster(ctx, cluster.Options{
		SeedAddrs:       opts.SeedAddrs,
		MaxRedirections: opts.MaxRedirections,
		ScaleReads:      opts.ScaleReads,
		RefreshInterval: opts.RefreshInterval,
	}, opts.ConnOptions, opts.Sink)
}

// NewClusterFromFile loads a ClusterOptions from a YAML file (see
// internal/config) and bootstraps a ClusterClient from it.
func NewClusterFromFile(ctx context.Context, path string) (*ClusterClient, error) {
	c, err := config.LoadClusterOptions(path)
	if err != nil {
		return nil, err
	}
	return bootstrapCluster(ctx, c.ToRouterOptions(), c.RedisOptions.ToConnOptions(), nil)
}

func bootstrapCluster(ctx context.Context, routerOpts cluster.Options, connTemplate conn.Options, sink conn.EventSink) (*ClusterClient, error) {
	routerOpts.Dial = func(addr string) *conn.Connection {
		o := connTemplate
		o.Addr = addr
		c := conn.New(o)
		dialCtx, cancel := context.WithTimeout(context.Background(), o.WithDefaults().ConnectTimeout)
		defer cancel()
		c.Connect(dialCtx)
		return c
	}
	router := cluster.New(routerOpts)
	orchestrator := cluster.NewOrchestrator(router, sink)
	if err := router.Bootstrap(ctx); err != nil {
		return nil, err
	}
	refreshCtx, cancel := context.WithCancel(context.Background())
	go router.RunRefreshLoop(refreshCtx)
	cc := &ClusterClient{router: router, orchestrator: orchestrator, cancel: cancel}
	go cc.watchDrain()
	return cc, nil
}

// watchDrain cancels the refresh loop once the pool has drained to
// empty, the orchestrator's signal that nothing is left to refresh.
func (cc *ClusterClient) watchDrain() {
	<-cc.orchestrator.Done()
	cc.cancel()
}

// Do routes a single command by name to the node owning its key(s).
func (cc *ClusterClient) Do(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	cmd := command.New(name, args...)
	return cc.router.Dispatch(ctx, cmd)
}

// Pipeline starts a new cluster-routed batch: its single-slot
// invariant is enforced before the first byte is written.
func (cc *ClusterClient) Pipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.ClusterDispatcher{Router: cc.router})
}

// Multi starts a MULTI/EXEC transaction batch routed to the slot all
// of its member commands share.
func (cc *ClusterClient) Multi() *pipeline.Pipeline {
	return cc.Pipeline().Multi()
}

// Close stops the background refresh loop and disconnects every
// pooled node.
func (cc *ClusterClient) Close() {
	cc.cancel()
	cc.router.Close()
}
