package config

import (
	"redisx/internal/cluster"
	"redisx/internal/codecx"
	"redisx/internal/conn"
)

// ToConnOptions converts a YAML-loaded Options into the conn.Options a
// Connection actually takes, resolving the ValueCodec name and the
// unix-vs-tcp Addr the way Resolved's callers expect. Call Resolved
// first (LoadOptions already does).
func (o Options) ToConnOptions() conn.Options {
	co := conn.Options{
		Network:        o.Family,
		Addr:           o.Addr(),
		Password:       o.Password,
		DB:             o.DB,
		ConnectionName: o.ConnectionName,
		KeepAlive:      o.KeepAlive,
		NoDelay:        o.NoDelay,
		ConnectTimeout: o.ConnectTimeout(),

		MaxRetriesPerRequest: o.MaxRetriesPerRequest,

		EnableOfflineQueue:  o.EnableOfflineQueueOr(true),
		EnableReadyCheck:    o.EnableReadyCheckOr(true),
		MaxLoadingRetryTime: o.MaxLoadingRetryTime(),

		LazyConnect:                   o.LazyConnect,
		AutoResubscribe:               o.AutoResubscribeOr(true),
		AutoResendUnfulfilledCommands: o.AutoResendUnfulfilledCommandsOr(true),

		ReadOnly:               o.ReadOnly,
		StringifyNumbers:       o.StringifyNumbers,
		KeyPrefix:              o.KeyPrefix,
		ShowFriendlyErrorStack: o.ShowFriendlyErrorStack,
	}
	if o.ValueCodec != "" {
		if codec, ok := codecx.ByName(o.ValueCodec); ok {
			co.ValueCodec = codec
		}
	}
	return co
}

// ToRouterOptions converts a YAML-loaded ClusterOptions into the
// cluster.Options a Router takes. The caller must still supply Dial,
// since dialing a cluster node needs the per-node address substituted
// into the RedisOptions template at connect time.
func (c ClusterOptions) ToRouterOptions() cluster.Options {
	ro := cluster.Options{
		SeedAddrs:       c.Nodes,
		MaxRedirections: c.MaxRedirections,
		RetryDelayMoved: c.RetryDelayOnMoved(),
		RetryDelayAsk:   c.RetryDelayOnTryAgain(),
		RefreshInterval: c.SlotsRefreshInterval(),
	}
	switch c.ScaleReads {
	case ScaleReadsSlave:
		ro.ScaleReads = cluster.ScaleReadsSlave
	case ScaleReadsAll:
		ro.ScaleReads = cluster.ScaleReadsAll
	default:
		ro.ScaleReads = cluster.ScaleReadsMaster
	}
	return ro
}
