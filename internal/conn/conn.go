// Package conn owns a single connection's wire lifecycle: dialing,
// the ready sequence, the write/FIFO path, the background read loop,
// offline queueing while not ready, and reconnect-with-backoff driven
// by a pluggable retry strategy.
package conn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"redisx/internal/command"
	"redisx/internal/errs"
	"redisx/internal/logx"
	"redisx/internal/pubsub"
	"redisx/internal/resp"
	"redisx/internal/respipe"
)

// Connection is one TCP (or unix socket) link to a Redis-protocol
// server, with its own reply pipeline, offline queue and subscription
// set. Safe for concurrent use: Submit may be called from any number
// of goroutines, serialized internally.
type Connection struct {
	opts Options
	log  *logx.Logger

	sinkMu sync.RWMutex
	sink   EventSink

	mu     sync.Mutex
	status Status

	// currentDB is the database index actually SELECTed on the live
	// connection, which can drift from opts.DB when the caller issues
	// its own SELECT; offline-queue replay after a reconnect compares a
	// queued command's recorded DB against this to decide whether a
	// SELECT must be replayed ahead of it.
	currentDB int

	netConn net.Conn
	writer  *bufio.Writer
	reader  *bufio.Reader

	// writeMu serializes "write command bytes, then push onto fifo" as
	// one atomic step so the FIFO's order always matches the order
	// replies will arrive in, even with many concurrent Submit callers.
	writeMu sync.Mutex

	fifo         *respipe.FIFO
	offlineQueue []*command.Command
	subs         *pubsub.Set

	retryAttempt int
	closing      bool // true once Disconnect was called; suppresses auto-reconnect

	// dialFailureNoise gates dial-failure error-sink notifications. Its
	// zero value runs its action once, so only the first dial failure of
	// this Connection's lifetime reaches the sink; later ones are not
	// reported. It never gates the retry delay, which is RetryStrategy's
	// job.
	dialFailureNoise rate.Sometimes

	readDone chan struct{}
	stopDial chan struct{} // closed by Disconnect to cancel a pending reconnect sleep
}

// New constructs a Connection in StatusWait. Unless opts.LazyConnect is
// set, call Connect to dial immediately.
func New(opts Options) *Connection {
	opts = opts.WithDefaults()
	c := &Connection{
		opts:     opts,
		log:      opts.Logger,
		sink:     opts.Sink,
		status:   StatusWait,
		fifo:     respipe.New(),
		subs:     pubsub.New(),
		stopDial: make(chan struct{}),
	}
	return c
}

// Status returns the connection's current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetSink installs an EventSink to receive status/error/message
// notifications from this point on, replacing whatever was configured
// via Options.Sink. Used by the cluster orchestrator to attach a
// shared listener to pool connections after they're dialed.
func (c *Connection) SetSink(sink EventSink) {
	if sink == nil {
		sink = NoopSink{}
	}
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

func (c *Connection) sinkRef() EventSink {
	c.sinkMu.RLock()
	defer c.sinkMu.RUnlock()
	return c.sink
}

// ShowFriendlyErrorStack reports whether this connection was configured
// to capture submission call stacks onto rejected commands.
func (c *Connection) ShowFriendlyErrorStack() bool {
	return c.opts.ShowFriendlyErrorStack
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	from := c.status
	c.status = s
	c.mu.Unlock()
	if from != s {
		c.sinkRef().OnStatusChange(from, s)
	}
}

// Connect dials the server and runs the ready sequence. It blocks
// until the connection is ready, fails, or ctx is done. Safe to call
// once per Connection; reconnection after a failure is handled
// internally by the read loop's teardown path.
func (c *Connection) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)
	if err := c.dial(ctx); err != nil {
		c.handleDialFailure(err)
		return err
	}
	c.setStatus(StatusConnect)
	if err := c.runReadySequence(ctx); err != nil {
		c.teardown(err, false)
		return err
	}
	c.setStatus(StatusReady)
	c.mu.Lock()
	c.currentDB = c.opts.DB
	c.mu.Unlock()
	c.retryAttempt = 0
	c.readDone = make(chan struct{})
	go c.readLoop()
	c.flushOfflineQueue()
	return nil
}

func (c *Connection) dial(ctx context.Context) error {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	network := c.opts.Network
	addr := c.opts.Addr
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return errs.Wrap(errs.KindConnectTimeout, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(c.opts.NoDelay)
		tc.SetKeepAlive(c.opts.KeepAlive)
	}
	if c.opts.TLSConfig != nil {
		nc = tlsClient(nc, c.opts.TLSConfig, addr)
	}
	c.mu.Lock()
	c.netConn = nc
	c.writer = bufio.NewWriter(nc)
	c.reader = bufio.NewReader(nc)
	c.mu.Unlock()
	return nil
}

// runReadySequence issues AUTH/SELECT/CLIENT SETNAME and, unless
// EnableReadyCheck is disabled, an INFO loading-check.
func (c *Connection) runReadySequence(ctx context.Context) error {
	if c.opts.Password != "" {
		if _, err := c.sendDirect(ctx, "AUTH", c.opts.Password); err != nil {
			return err
		}
	}
	if c.opts.DB != 0 {
		if _, err := c.sendDirect(ctx, "SELECT", strconv.Itoa(c.opts.DB)); err != nil {
			return err
		}
	}
	if c.opts.ConnectionName != "" {
		if _, err := c.sendDirect(ctx, "CLIENT", "SETNAME", c.opts.ConnectionName); err != nil {
			return err
		}
	}
	if c.opts.ReadOnly {
		if _, err := c.sendDirect(ctx, "READONLY"); err != nil {
			return err
		}
	}
	if !c.opts.EnableReadyCheck {
		return nil
	}
	return c.waitUntilLoaded(ctx)
}

// sendDirect writes and awaits a single reply outside the normal
// Submit path, used only during the ready sequence before the read
// loop goroutine exists.
func (c *Connection) sendDirect(ctx context.Context, name string, args ...interface{}) (resp.Reply, error) {
	full := append([]interface{}{name}, args...)
	if err := resp.Encode(c.writer, full); err != nil {
		return resp.Reply{}, errs.Wrap(errs.KindConnectionClosed, err)
	}
	if err := c.writer.Flush(); err != nil {
		return resp.Reply{}, errs.Wrap(errs.KindConnectionClosed, err)
	}
	dec := resp.NewDecoder(c.reader)
	dec.StringifyNumbers = c.opts.StringifyNumbers
	r, err := dec.Decode()
	if err != nil {
		return resp.Reply{}, errs.Wrap(errs.KindProtocol, err)
	}
	if r.IsError() {
		return r, errs.FromReplyError(r.ErrKind, r.ErrMsg)
	}
	return r, nil
}

func (c *Connection) waitUntilLoaded(ctx context.Context) error {
	deadline := time.Now().Add(c.opts.MaxLoadingRetryTime)
	for {
		r, err := c.sendDirect(ctx, "INFO")
		if err != nil {
			return err
		}
		info := parseInfoBulk(r)
		if info["loading"] != "1" {
			if c.opts.ReadyCheckFn != nil && !c.opts.ReadyCheckFn(info) {
				return errs.New(errs.KindConnectTimeout, "ready check rejected server state")
			}
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindConnectTimeout, "server still loading after max_loading_retry_time")
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseInfoBulk(r resp.Reply) map[string]string {
	out := make(map[string]string)
	if r.Type != resp.TypeBulkString || r.BulkNull {
		return out
	}
	line := string(r.Bulk)
	start := 0
	for i := 0; i <= len(line); i++ {
		if i == len(line) || line[i] == '\n' {
			field := line[start:i]
			start = i + 1
			if len(field) > 0 && field[len(field)-1] == '\r' {
				field = field[:len(field)-1]
			}
			if field == "" || field[0] == '#' {
				continue
			}
			for j := 0; j < len(field); j++ {
				if field[j] == ':' {
					out[field[:j]] = field[j+1:]
					break
				}
			}
		}
	}
	return out
}

// Submit writes cmd to the connection if ready, or appends it to the
// offline queue when not ready and offline queueing is enabled. It
// returns an error synchronously only for cases that never reach the
// wire (closed with queueing disabled, subscriber/monitor mode
// violations); otherwise the caller awaits cmd.Wait.
func (c *Connection) Submit(cmd *command.Command) error {
	if c.opts.ShowFriendlyErrorStack {
		cmd.CaptureStack()
	}

	c.mu.Lock()
	status := c.status
	cmd.DB = c.currentDB
	c.mu.Unlock()

	if err := c.checkModeGate(cmd, status); err != nil {
		return err
	}

	if !status.IsReady() {
		if status.IsTerminal() {
			return errs.New(errs.KindConnectionClosed, "connection has ended")
		}
		if !c.opts.EnableOfflineQueue {
			return errs.New(errs.KindConnectionClosed, "connection not ready and offline queue disabled")
		}
		c.mu.Lock()
		c.offlineQueue = append(c.offlineQueue, cmd)
		c.mu.Unlock()
		return nil
	}
	return c.writeAndEnqueue(cmd)
}

func (c *Connection) checkModeGate(cmd *command.Command, status Status) error {
	if status == StatusMonitoring && !cmd.Flags.ValidInMonitorMode {
		return errs.New(errs.KindMonitorMode, "connection is in monitor mode")
	}
	if !c.subs.Empty() && !cmd.Flags.ValidInSubscriberMode && !cmd.Flags.EntersSubscriberMode {
		return errs.New(errs.KindSubscriberMode, "connection is in subscriber mode")
	}
	return nil
}

func (c *Connection) writeAndEnqueue(cmd *command.Command) error {
	return c.SubmitAll([]*command.Command{cmd})
}

// SubmitAll writes every command in cmds to the stream as a single
// batch — all commands serialised, then one Flush — and pushes them
// onto the FIFO in order, so a pipeline's commands reach the wire
// back-to-back rather than one round trip per command. Used directly
// by the pipeline engine; Submit itself calls this with a
// single-element slice so both paths share one write/FIFO-ordering
// critical section.
func (c *Connection) SubmitAll(cmds []*command.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, cmd := range cmds {
		if db, ok := selectTargetDB(cmd.Name, cmd.Args); ok {
			c.mu.Lock()
			c.currentDB = db
			c.mu.Unlock()
		}
		if err := resp.Encode(c.writer, cmd.FullArgs()); err != nil {
			wrapped := errs.Wrap(errs.KindConnectionClosed, err)
			c.failUnwritten(cmds, wrapped)
			c.teardown(wrapped, true)
			return nil
		}
	}
	if err := c.writer.Flush(); err != nil {
		// A failed Flush leaves the peer's receipt of every command in
		// this batch undetermined, so none of them is safely in flight;
		// reject them all directly rather than via the FIFO, since none
		// was pushed onto it.
		wrapped := errs.Wrap(errs.KindConnectionClosed, err)
		c.failUnwritten(cmds, wrapped)
		c.teardown(wrapped, true)
		return nil
	}
	for _, cmd := range cmds {
		c.fifo.Push(cmd)
		c.trackSubscriptionIntent(cmd)
	}
	return nil
}

// failUnwritten rejects every command in cmds that never reached the
// FIFO (a mid-batch encode/flush failure), so callers blocked on
// Wait() don't hang forever on a command this connection will never
// resolve via its normal read-loop path.
func (c *Connection) failUnwritten(cmds []*command.Command, err error) {
	for _, cmd := range cmds {
		cmd.Reject(err)
	}
}

func (c *Connection) trackSubscriptionIntent(cmd *command.Command) {
	switch cmd.Name {
	case "subscribe":
		for _, a := range cmd.Args {
			c.subs.Add(pubsub.Channel, fmt.Sprint(a))
		}
	case "psubscribe":
		for _, a := range cmd.Args {
			c.subs.Add(pubsub.Pattern, fmt.Sprint(a))
		}
	case "unsubscribe":
		for _, a := range cmd.Args {
			c.subs.Remove(pubsub.Channel, fmt.Sprint(a))
		}
	case "punsubscribe":
		for _, a := range cmd.Args {
			c.subs.Remove(pubsub.Pattern, fmt.Sprint(a))
		}
	case "monitor":
		c.setStatus(StatusMonitoring)
	}
}

// readLoop decodes replies until the connection errors out, completing
// FIFO heads and routing subscriber push messages and MONITOR lines to
// the EventSink. Runs in its own goroutine, one per live connection.
func (c *Connection) readLoop() {
	defer close(c.readDone)
	dec := resp.NewDecoder(c.reader)
	dec.StringifyNumbers = c.opts.StringifyNumbers
	for {
		r, err := dec.Decode()
		if err != nil {
			c.teardown(errs.Wrap(errs.KindConnectionClosed, err), true)
			return
		}
		c.mu.Lock()
		monitoring := c.status == StatusMonitoring
		c.mu.Unlock()
		if monitoring && r.Type == resp.TypeSimpleString && c.fifo.Len() == 0 {
			c.sinkRef().OnMonitorLine(r.Str)
			continue
		}
		if isPushMessage(r) {
			c.dispatchPush(r)
			continue
		}
		c.completeHeadWithReply(r)
	}
}

// completeHeadWithReply pops the FIFO head and resolves it with the
// command-aware transform of r (TransformReply dispatches on the
// command's own name, e.g. flattening HGETALL pairs into a map), or
// rejects it with a classified *errs.Error for an error reply. An
// unsolicited reply (empty FIFO) is dropped; it should never happen
// outside of a protocol violation already being torn down elsewhere.
func (c *Connection) completeHeadWithReply(r resp.Reply) {
	cmd := c.fifo.Pop()
	if cmd == nil {
		return
	}
	if r.IsError() {
		cmd.Reject(errs.FromReplyError(r.ErrKind, r.ErrMsg))
		return
	}
	if c.opts.ValueCodec != nil {
		r = c.decodeValue(r)
	}
	cmd.Resolve(command.TransformReply(cmd.Name, r))
}

// decodeValue runs every non-null bulk string in r (recursing into
// arrays) through the configured ValueCodec. A per-value decode
// failure is left as-is rather than failing the whole reply: a
// producer may mix compressed and plain values in the same keyspace.
func (c *Connection) decodeValue(r resp.Reply) resp.Reply {
	switch r.Type {
	case resp.TypeBulkString:
		if r.BulkNull {
			return r
		}
		if decoded, err := c.opts.ValueCodec.Decode(r.Bulk); err == nil {
			r.Bulk = decoded
		}
		return r
	case resp.TypeArray:
		if r.ArrayNull {
			return r
		}
		for i, item := range r.Array {
			r.Array[i] = c.decodeValue(item)
		}
		return r
	default:
		return r
	}
}

func isPushMessage(r resp.Reply) bool {
	if r.Type != resp.TypeArray || r.ArrayNull || len(r.Array) == 0 {
		return false
	}
	head := r.Array[0]
	if head.Type != resp.TypeBulkString || head.BulkNull {
		return false
	}
	switch string(head.Bulk) {
	case "message", "pmessage", "subscribe", "unsubscribe", "psubscribe", "punsubscribe":
		return true
	default:
		return false
	}
}

func (c *Connection) dispatchPush(r resp.Reply) {
	kind := string(r.Array[0].Bulk)
	switch kind {
	case "message":
		if len(r.Array) >= 3 {
			c.sinkRef().OnMessage(string(r.Array[1].Bulk), r.Array[2].Bulk)
		}
	case "pmessage":
		if len(r.Array) >= 4 {
			c.sinkRef().OnPMessage(string(r.Array[1].Bulk), string(r.Array[2].Bulk), r.Array[3].Bulk)
		}
	default:
		// subscribe/unsubscribe/psubscribe/punsubscribe confirmations
		// complete the FIFO head the same as any other reply so the
		// caller's Wait() unblocks with the channel count.
		c.completeHeadWithReply(r)
	}
}

func (c *Connection) flushOfflineQueue() {
	c.mu.Lock()
	queued := c.offlineQueue
	c.offlineQueue = nil
	c.mu.Unlock()
	for _, cmd := range queued {
		c.replaySelectIfNeeded(cmd.DB)
		c.writeAndEnqueue(cmd)
	}
}

// replaySelectIfNeeded issues a SELECT ahead of a queued command if the
// database it was originally written against differs from the one the
// reconnected socket is currently on (freshly dialed connections start
// on opts.DB via the ready sequence, which may not match a command
// queued after the caller issued its own mid-session SELECT). Goes
// through the normal write/FIFO path, not sendDirect, since the read
// loop goroutine already owns c.reader by the time offline commands
// are flushed.
func (c *Connection) replaySelectIfNeeded(db int) {
	c.mu.Lock()
	current := c.currentDB
	c.mu.Unlock()
	if db == current {
		return
	}
	cmd := command.New("select", strconv.Itoa(db))
	c.writeAndEnqueue(cmd)
	cmd.Wait(context.Background())
}

// selectTargetDB reports the database index a SELECT command targets,
// so SubmitAll can keep currentDB in sync with a caller-issued SELECT
// as it goes out on the wire.
func selectTargetDB(name string, args []interface{}) (int, bool) {
	if !strings.EqualFold(name, "select") || len(args) == 0 {
		return 0, false
	}
	switch v := args[0].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// manuallyClosingSuppressed reports whether cause belongs to the
// connect/read-syscall error category or carries the connection-closed
// sentinel, the classes of error a caller-initiated Disconnect expects
// to see on its own and that the EventSink should therefore not also
// be told about.
func manuallyClosingSuppressed(cause error) bool {
	var e *errs.Error
	if errors.As(cause, &e) {
		switch e.Kind {
		case errs.KindConnectionClosed, errs.KindConnectTimeout:
			return true
		}
	}
	var ne net.Error
	return errors.As(cause, &ne)
}

// teardown handles any terminal I/O error: it fails (or, with
// AutoResendUnfulfilledCommands, re-queues) in-flight commands, closes
// the socket, and either schedules a reconnect or moves to StatusEnd,
// honoring closing (a manual Disconnect in progress, which always wins
// over reconnecting). ReconnectOnError is not consulted here.
func (c *Connection) teardown(cause error, mayReconnect bool) {
	c.mu.Lock()
	if c.status == StatusClose || c.status == StatusEnd {
		c.mu.Unlock()
		return
	}
	closing := c.closing
	nc := c.netConn
	c.netConn = nil
	c.status = StatusClose
	c.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	if !closing || !manuallyClosingSuppressed(cause) {
		c.sinkRef().OnError(cause)
	}

	resend := c.opts.AutoResendUnfulfilledCommands && mayReconnect && !closing
	if resend {
		c.requeueOrFailMaxRetries(c.fifo.Drain())
	} else {
		c.fifo.DrainWithError(cause)
	}

	if closing {
		c.setStatus(StatusEnd)
		c.drainOfflineQueue(cause)
		return
	}
	if !mayReconnect {
		c.setStatus(StatusEnd)
		c.drainOfflineQueue(cause)
		return
	}
	go c.scheduleReconnect()
}

// requeueOrFailMaxRetries re-offline-queues drained in-flight commands
// for resend after reconnect, except those that have now been resent
// MaxRetriesPerRequest times: those are flushed with KindMaxRetries
// instead, per spec's "attempt mod (cap+1) == 0" rule. A cap of 0
// means unlimited resends.
func (c *Connection) requeueOrFailMaxRetries(drained []*command.Command) {
	limit := c.opts.MaxRetriesPerRequest
	toRequeue := make([]*command.Command, 0, len(drained))
	for _, cmd := range drained {
		cmd.Attempts++
		if limit > 0 && cmd.Attempts%(limit+1) == 0 {
			cmd.Reject(errs.New(errs.KindMaxRetries, "max_retries_per_request exceeded"))
			continue
		}
		toRequeue = append(toRequeue, cmd)
	}
	c.mu.Lock()
	c.offlineQueue = append(toRequeue, c.offlineQueue...)
	c.mu.Unlock()
}

func (c *Connection) drainOfflineQueue(cause error) {
	c.mu.Lock()
	queued := c.offlineQueue
	c.offlineQueue = nil
	c.mu.Unlock()
	for _, cmd := range queued {
		cmd.Reject(errs.Wrap(errs.KindConnectionClosed, cause))
	}
}

func (c *Connection) scheduleReconnect() {
	c.retryAttempt++
	delayMs, ok := c.opts.RetryStrategy(c.retryAttempt)
	if !ok {
		c.setStatus(StatusEnd)
		c.drainOfflineQueue(errs.New(errs.KindMaxRetries, "retry strategy exhausted"))
		return
	}
	c.setStatus(StatusReconnecting)
	select {
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
	case <-c.stopDial:
		c.setStatus(StatusEnd)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		// Connect already invoked teardown/scheduleReconnect on failure
		// paths that reach the network; dial failures short-circuit via
		// handleDialFailure below.
		return
	}
	c.resubscribeIfNeeded()
}

func (c *Connection) handleDialFailure(err error) {
	c.dialFailureNoise.Do(func() { c.sinkRef().OnError(err) })
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		c.setStatus(StatusEnd)
		return
	}
	go c.scheduleReconnect()
}

func (c *Connection) resubscribeIfNeeded() {
	if !c.opts.AutoResubscribe {
		return
	}
	channels, patterns := c.subs.Snapshot()
	if len(channels) == 0 && len(patterns) == 0 {
		return
	}
	if len(channels) > 0 {
		args := make([]interface{}, len(channels))
		for i, ch := range channels {
			args[i] = ch
		}
		c.writeAndEnqueue(command.New("subscribe", args...))
	}
	if len(patterns) > 0 {
		args := make([]interface{}, len(patterns))
		for i, p := range patterns {
			args[i] = p
		}
		c.writeAndEnqueue(command.New("psubscribe", args...))
	}
}

// Disconnect initiates a manual close: in-flight and offline-queued
// commands fail with ConnectionClosed, and no reconnect is attempted.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	nc := c.netConn
	c.mu.Unlock()
	close(c.stopDial)
	if nc != nil {
		nc.Close()
	} else {
		c.teardown(errs.New(errs.KindConnectionClosed, "disconnect called"), false)
	}
}

// ApplyReconnectPolicy returns the configured ReconnectOnError decision
// for err (ReconnectNo when none is configured). It only reports the
// decision: it neither disconnects nor resends, and the read loop does
// not call it, so a reply error alone never triggers a reconnect.
func (c *Connection) ApplyReconnectPolicy(err *errs.Error) ReconnectDecision {
	if c.opts.ReconnectOnError == nil {
		return ReconnectNo
	}
	return c.opts.ReconnectOnError(err)
}
