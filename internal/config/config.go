// Package config holds the client core's recognised configuration
// options — Options for a single connection, ClusterOptions for a
// cluster deployment — plus a YAML loader for both. Mirrors the
// teacher's internal/config.Config (JSON-tagged struct-of-structs,
// defaults resolved by a Resolved*Config-style method) adapted to the
// options table of spec.md §6.
package config

import (
	"net"
	"strconv"
	"time"
)

// Options configures a single Connection end to end: transport
// target, auth, lifecycle policy and the ambient flags spec.md §6
// lists. Programmatic construction is normal; LoadOptions additionally
// fills an Options from a YAML file for cmd/ demos and tests.
type Options struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Path   string `yaml:"path" json:"path"` // unix socket path; set Family="unix" and Path to use it
	Family string `yaml:"family" json:"family"`

	TLS bool `yaml:"tls" json:"tls"`

	Password       string `yaml:"password" json:"password"`
	DB             int    `yaml:"db" json:"db"`
	ConnectionName string `yaml:"connectionName" json:"connectionName"`

	KeepAlive bool `yaml:"keepAlive" json:"keepAlive"`
	NoDelay   bool `yaml:"noDelay" json:"noDelay"`

	ConnectTimeoutMs int `yaml:"connectTimeoutMs" json:"connectTimeoutMs"`

	MaxRetriesPerRequest int `yaml:"maxRetriesPerRequest" json:"maxRetriesPerRequest"`

	EnableOfflineQueue    *bool `yaml:"enableOfflineQueue" json:"enableOfflineQueue"`
	EnableReadyCheck      *bool `yaml:"enableReadyCheck" json:"enableReadyCheck"`
	MaxLoadingRetryTimeMs int   `yaml:"maxLoadingRetryTimeMs" json:"maxLoadingRetryTimeMs"`

	LazyConnect                   bool  `yaml:"lazyConnect" json:"lazyConnect"`
	AutoResubscribe               *bool `yaml:"autoResubscribe" json:"autoResubscribe"`
	AutoResendUnfulfilledCommands *bool `yaml:"autoResendUnfulfilledCommands" json:"autoResendUnfulfilledCommands"`

	ReadOnly               bool   `yaml:"readOnly" json:"readOnly"`
	StringifyNumbers       bool   `yaml:"stringifyNumbers" json:"stringifyNumbers"`
	KeyPrefix              string `yaml:"keyPrefix" json:"keyPrefix"`
	ShowFriendlyErrorStack bool   `yaml:"showFriendlyErrorStack" json:"showFriendlyErrorStack"`

	// Sentinel discovery. Non-empty Sentinels switches a Client to
	// sentinel mode: dial is deferred until the named service's
	// address is resolved through the sentinel fleet.
	Sentinels                []string          `yaml:"sentinels" json:"sentinels"`
	Name                     string            `yaml:"name" json:"name"` // sentinel master/service name
	Role                     string            `yaml:"role" json:"role"` // "master" | "slave"
	EnableTLSForSentinelMode bool              `yaml:"enableTlsForSentinelMode" json:"enableTlsForSentinelMode"`
	NatMap                   map[string]string `yaml:"natMap" json:"natMap"`
	UpdateSentinels          bool              `yaml:"updateSentinels" json:"updateSentinels"`

	// ValueCodec names an internal/codecx built-in ("zstd", "lz4",
	// "lzf") applied to bulk-string replies, or "" (default) to pass
	// bulk strings through unmodified.
	ValueCodec string `yaml:"valueCodec" json:"valueCodec"`

	path string
}

// boolDefault dereferences an optional bool, substituting def when nil.
func boolDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Resolved fills every unset field with the core's defaults, mirroring
// the teacher's Resolved*Config methods. Called by LoadOptions and by
// ClusterOptions.Resolved; safe to call more than once (idempotent).
func (o Options) Resolved() Options {
	if o.Family == "" {
		o.Family = "tcp"
	}
	if o.ConnectTimeoutMs == 0 {
		o.ConnectTimeoutMs = 5000
	}
	if o.MaxLoadingRetryTimeMs == 0 {
		o.MaxLoadingRetryTimeMs = 10000
	}
	if o.Role == "" {
		o.Role = "master"
	}
	return o
}

func (o Options) ConnectTimeout() time.Duration {
	return time.Duration(o.ConnectTimeoutMs) * time.Millisecond
}

func (o Options) MaxLoadingRetryTime() time.Duration {
	return time.Duration(o.MaxLoadingRetryTimeMs) * time.Millisecond
}

func (o Options) EnableOfflineQueueOr(def bool) bool { return boolDefault(o.EnableOfflineQueue, def) }
func (o Options) EnableReadyCheckOr(def bool) bool   { return boolDefault(o.EnableReadyCheck, def) }
func (o Options) AutoResubscribeOr(def bool) bool    { return boolDefault(o.AutoResubscribe, def) }
func (o Options) AutoResendUnfulfilledCommandsOr(def bool) bool {
	return boolDefault(o.AutoResendUnfulfilledCommands, def)
}

// Addr returns the dial target: Path for a unix socket, else host:port.
func (o Options) Addr() string {
	if o.Family == "unix" && o.Path != "" {
		return o.Path
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// ScaleReads selects which role a ClusterOptions-driven router serves
// read-only commands from.
type ScaleReads string

const (
	ScaleReadsMaster ScaleReads = "master"
	ScaleReadsSlave  ScaleReads = "slave"
	ScaleReadsAll    ScaleReads = "all"
)

// ClusterOptions configures a ClusterClient: seed nodes, redirection
// policy and refresh cadence, plus a per-node Options template (auth,
// TLS, timeouts) applied to every connection the pool dials.
type ClusterOptions struct {
	Nodes      []string   `yaml:"nodes" json:"nodes"`
	ScaleReads ScaleReads `yaml:"scaleReads" json:"scaleReads"`

	MaxRedirections        int `yaml:"maxRedirections" json:"maxRedirections"`
	RetryDelayOnMovedMs    int `yaml:"retryDelayOnMovedMs" json:"retryDelayOnMovedMs"`
	RetryDelayOnTryAgainMs int `yaml:"retryDelayOnTryAgainMs" json:"retryDelayOnTryAgainMs"`

	SlotsRefreshIntervalMs int `yaml:"slotsRefreshIntervalMs" json:"slotsRefreshIntervalMs"`
	SlotsRefreshTimeoutMs  int `yaml:"slotsRefreshTimeoutMs" json:"slotsRefreshTimeoutMs"`

	RedisOptions Options `yaml:"redisOptions" json:"redisOptions"`

	path string
}

func (c ClusterOptions) Resolved() ClusterOptions {
	if c.ScaleReads == "" {
		c.ScaleReads = ScaleReadsMaster
	}
	if c.MaxRedirections <= 0 {
		c.MaxRedirections = 16
	}
	if c.RetryDelayOnTryAgainMs <= 0 {
		c.RetryDelayOnTryAgainMs = 20
	}
	if c.SlotsRefreshIntervalMs <= 0 {
		c.SlotsRefreshIntervalMs = 60000
	}
	if c.SlotsRefreshTimeoutMs <= 0 {
		c.SlotsRefreshTimeoutMs = 2000
	}
	c.RedisOptions = c.RedisOptions.Resolved()
	return c
}

func (c ClusterOptions) RetryDelayOnMoved() time.Duration {
	return time.Duration(c.RetryDelayOnMovedMs) * time.Millisecond
}

func (c ClusterOptions) RetryDelayOnTryAgain() time.Duration {
	return time.Duration(c.RetryDelayOnTryAgainMs) * time.Millisecond
}

func (c ClusterOptions) SlotsRefreshInterval() time.Duration {
	return time.Duration(c.SlotsRefreshIntervalMs) * time.Millisecond
}

func (c ClusterOptions) SlotsRefreshTimeout() time.Duration {
	return time.Duration(c.SlotsRefreshTimeoutMs) * time.Millisecond
}

// ConfigPath returns the file an Options was loaded from, or "" for a
// programmatically-built Options.
func (o Options) ConfigPath() string { return o.path }

// ConfigPath returns the file a ClusterOptions was loaded from.
func (c ClusterOptions) ConfigPath() string { return c.path }
