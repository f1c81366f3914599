package redisx

import (
	"context"
	"time"

	"redisx/internal/conn"
	"redisx/internal/sentinel"
)

// SentinelOptions configures primary discovery through a Sentinel
// fleet; ConnOptions applies to the resolved primary's Client
// connection only. Sentinel connections are dialed with default
// options (ready check off) and a 2-second connect deadline.
type SentinelOptions struct {
	SentinelAddrs   []string
	MasterName      string
	UpdateSentinels bool
	NATMap          map[string]string

	ConnOptions Options
}

// DialViaSentinel resolves the current primary for opts.MasterName
// through the configured sentinel fleet and returns a Client dialed
// to it. It resolves once; a caller that wants to follow failovers
// should re-resolve (e.g. on a ConnectionClosed error from the
// returned Client) and Dial again.
func DialViaSentinel(ctx context.Context, opts SentinelOptions) (*Client, error) {
	disc := sentinel.New(sentinel.Options{
		SentinelAddrs:   opts.SentinelAddrs,
		MasterName:      opts.MasterName,
		UpdateSentinels: opts.UpdateSentinels,
		NATMap:          opts.NATMap,
		Dial: func(addr string) *conn.Connection {
			c := conn.New(conn.Options{Addr: addr, EnableReadyCheck: false})
			dialCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.Connect(dialCtx)
			return c
		},
	})
	addr, err := disc.ResolveWithRetry(ctx, sentinel.RolePrimary)
	if err != nil {
		return nil, err
	}
	o := opts.ConnOptions
	o.Addr = addr
	return Dial(ctx, o)
}
