// Package redisx is the public façade over the client core described
// by the internal packages: Client wraps a single Connection,
// ClusterClient wraps a cluster Router, and both expose the same
// pipeline/transaction/define_command surface (§6 Commander surface).
package redisx

import (
	"context"

	"redisx/internal/command"
	"redisx/internal/config"
	"redisx/internal/conn"
	"redisx/internal/pipeline"
)

// Options re-exports the single-connection configuration type so
// callers don't need to import internal/conn directly.
type Options = conn.Options

// Message is a pub/sub payload delivered to a channel subscription.
type Message struct {
	Channel string
	Payload []byte
}

// PMessage is a pub/sub payload delivered to a pattern subscription.
type PMessage struct {
	Pattern string
	Channel string
	Payload []byte
}

// messageBridge installs itself as the Connection's EventSink,
// fanning subscriber pushes out to buffered channels while still
// forwarding every event to a caller-supplied sink, if any.
type messageBridge struct {
	messages  chan Message
	pmessages chan PMessage
	user      conn.EventSink
}

func (b *messageBridge) OnStatusChange(from, to conn.Status) {
	if b.user != nil {
		b.user.OnStatusChange(from, to)
	}
}

func (b *messageBridge) OnError(err error) {
	if b.user != nil {
		b.user.OnError(err)
	}
}

func (b *messageBridge) OnMessage(channel string, payload []byte) {
	select {
	case b.messages <- Message{Channel: channel, Payload: payload}:
	default:
	}
	if b.user != nil {
		b.user.OnMessage(channel, payload)
	}
}

func (b *messageBridge) OnPMessage(pattern, channel string, payload []byte) {
	select {
	case b.pmessages <- PMessage{Pattern: pattern, Channel: channel, Payload: payload}:
	default:
	}
	if b.user != nil {
		b.user.OnPMessage(pattern, channel, payload)
	}
}

func (b *messageBridge) OnMonitorLine(line string) {
	if b.user != nil {
		b.user.OnMonitorLine(line)
	}
}

var _ conn.EventSink = (*messageBridge)(nil)

// Client is a single-connection Commander: every RESP command in the
// static table plus pipeline/multi/exec/define_command, backed by one
// internal Connection.
type Client struct {
	conn   *conn.Connection
	opts   Options
	bridge *messageBridge
}

// Dial constructs a Client and connects it, unless opts.LazyConnect is
// set (in which case the caller must call Connect itself).
func Dial(ctx context.Context, opts Options) (*Client, error) {
	bridge := &messageBridge{
		messages:  make(chan Message, 64),
		pmessages: make(chan PMessage, 64),
		user:      opts.Sink,
	}
	opts.Sink = bridge
	c := &Client{conn: conn.New(opts), opts: opts, bridge: bridge}
	if opts.LazyConnect {
		return c, nil
	}
	if err := c.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// DialFromFile loads a single-connection configuration from a YAML
// file (see internal/config) and dials it.
func DialFromFile(ctx context.Context, path string) (*Client, error) {
	o, err := config.LoadOptions(path)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, o.ToConnOptions())
}

// Connect dials (or redials) the underlying connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect closes the underlying connection. reconnect is accepted
// for symmetry with the source's disconnect(reconnect) verb; this core
// never auto-reconnects after a manual Disconnect regardless of its
// value, so a caller wanting to resume must call Connect again.
func (c *Client) Disconnect(reconnect bool) {
	c.conn.Disconnect()
}

// Do submits a single command by name and waits for its reply.
func (c *Client) Do(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	cmd := command.New(name, args...)
	if err := c.conn.Submit(cmd); err != nil {
		return nil, err
	}
	return cmd.Wait(ctx)
}

// Pipeline starts a new batch over this connection.
func (c *Client) Pipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.ConnDispatcher{Conn: c.conn})
}

// Multi starts a MULTI/EXEC transaction batch over this connection.
func (c *Client) Multi() *pipeline.Pipeline {
	return c.Pipeline().Multi()
}

// Monitor puts the connection into MONITOR mode; observed lines are
// reported to the configured EventSink's OnMonitorLine.
func (c *Client) Monitor(ctx context.Context) error {
	_, err := c.Do(ctx, "monitor")
	return err
}

// Subscribe subscribes to channels; incoming messages arrive on
// Messages().
func (c *Client) Subscribe(ctx context.Context, channels ...string) error {
	args := make([]interface{}, len(channels))
	for i, ch := range channels {
		args[i] = ch
	}
	_, err := c.Do(ctx, "subscribe", args...)
	return err
}

// PSubscribe subscribes to patterns; incoming messages arrive on
// PMessages().
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) error {
	args := make([]interface{}, len(patterns))
	for i, p := range patterns {
		args[i] = p
	}
	_, err := c.Do(ctx, "psubscribe", args...)
	return err
}

// Messages returns the channel-subscription message stream.
func (c *Client) Messages() <-chan Message { return c.bridge.messages }

// PMessages returns the pattern-subscription message stream.
func (c *Client) PMessages() <-chan PMessage { return c.bridge.pmessages }

// Duplicate returns a new, not-yet-connected Client using the same
// options with overrides applied on top — e.g. a different DB index
// for a per-request connection.
func (c *Client) Duplicate(overrides func(*Options)) *Client {
	o := c.opts
	if overrides != nil {
		overrides(&o)
	}
	o.Sink = c.bridge.user
	bridge := &messageBridge{
		messages:  make(chan Message, 64),
		pmessages: make(chan PMessage, 64),
		user:      o.Sink,
	}
	o.Sink = bridge
	return &Client{conn: conn.New(o), opts: o, bridge: bridge}
}

// DefineCommandOptions configures a custom scripted command (EVAL
// against a pinned Lua body).
type DefineCommandOptions struct {
	Lua          string
	NumberOfKeys int
}

// DefineCommand registers name as a custom command that runs
// opts.Lua via EVAL, with opts.NumberOfKeys of the call's arguments
// treated as KEYS and the rest as ARGV. The returned function is the
// command's callable form, matching the source's
// `define_command(name, {lua, number_of_keys})` verb; name is kept as
// a parameter (rather than dropped) so callers can use it for logging
// or a future command registry without changing this signature.
func (c *Client) DefineCommand(name string, opts DefineCommandOptions) func(ctx context.Context, args ...interface{}) (interface{}, error) {
	_ = name
	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		full := make([]interface{}, 0, 2+len(args))
		full = append(full, opts.Lua, opts.NumberOfKeys)
		full = append(full, args...)
		return c.Do(ctx, "eval", full...)
	}
}
