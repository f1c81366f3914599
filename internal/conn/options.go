package conn

import (
	"crypto/tls"
	"time"

	"redisx/internal/codecx"
	"redisx/internal/errs"
	"redisx/internal/logx"
)

// RetryStrategy decides the delay before the next reconnect attempt.
// ok == false means give up (transition to `end`); a zero delay means
// reconnect on the next scheduler tick.
type RetryStrategy func(attempt int) (delayMs int, ok bool)

// DefaultRetryStrategy backs off linearly, capped at 2 seconds.
func DefaultRetryStrategy(attempt int) (int, bool) {
	delay := attempt * 50
	if delay > 2000 {
		delay = 2000
	}
	return delay, true
}

// ReconnectDecision is the result of ReconnectOnError.
type ReconnectDecision int

const (
	ReconnectNo        ReconnectDecision = 0
	ReconnectAndFail   ReconnectDecision = 1
	ReconnectAndResend ReconnectDecision = 2
)

// ReconnectOnError inspects a reply error and decides whether it
// should force a disconnect.
type ReconnectOnError func(err *errs.Error) ReconnectDecision

// ReadyCheck optionally vetoes readiness after INFO is parsed.
type ReadyCheck func(info map[string]string) bool

// Options configures a single Connection.
type Options struct {
	Network string // "tcp" or "unix"
	Addr    string // host:port, or socket path when Network == "unix"

	TLSConfig *tls.Config

	Password       string
	DB             int
	ConnectionName string

	KeepAlive bool
	NoDelay   bool

	ConnectTimeout time.Duration

	RetryStrategy        RetryStrategy
	MaxRetriesPerRequest int
	ReconnectOnError     ReconnectOnError

	EnableOfflineQueue  bool
	EnableReadyCheck    bool
	MaxLoadingRetryTime time.Duration

	LazyConnect                   bool
	AutoResubscribe               bool
	AutoResendUnfulfilledCommands bool

	ReadOnly               bool
	StringifyNumbers       bool
	KeyPrefix              string
	ShowFriendlyErrorStack bool

	ReadyCheckFn ReadyCheck

	// ValueCodec, when set, transparently decompresses every
	// non-null bulk-string reply before it reaches TransformReply.
	// Off by default: bulk strings pass through unmodified unless a
	// caller opts in (see internal/codecx).
	ValueCodec codecx.ValueCodec

	Logger *logx.Logger
	Sink   EventSink
}

// WithDefaults fills unset fields with the core's defaults.
func (o Options) WithDefaults() Options {
	if o.Network == "" {
		o.Network = "tcp"
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.RetryStrategy == nil {
		o.RetryStrategy = DefaultRetryStrategy
	}
	if o.MaxLoadingRetryTime == 0 {
		o.MaxLoadingRetryTime = 10 * time.Second
	}
	if o.Sink == nil {
		o.Sink = NoopSink{}
	}
	return o
}

// NewOptions returns Options with every default applied, equivalent to
// Options{}.WithDefaults() plus EnableOfflineQueue defaulted on.
func NewOptions() Options {
	o := Options{EnableOfflineQueue: true}
	return o.WithDefaults()
}
