package upstream

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"trading-relay/src/activity"
	"trading-relay/src/codec"
	"trading-relay/src/correlator"
	"trading-relay/src/helpers"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
	"trading-relay/src/state"
	"trading-relay/src/utils"
)

const (
	subsystem     = "upstream"
	dispatchQueue = 1024
)

// Options tunes the link. Zero values get defaults in NewLink.
type Options struct {
	URL               string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	SweepInterval     time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	Symbols           []string
	Clock             utils.Clock
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 500 * time.Millisecond
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock
	}
}

// -----------------------------------------------------------------------------

// Link owns the single upstream connection: connect, authorize, heartbeat
// and reconnect with backoff. Replies are routed to the correlator; pushes
// are applied to the store and published to clients by one dispatcher.
type Link struct {
	opts   Options
	dialer Dialer
	corr   *correlator.Correlator
	subs   *Subscriptions
	store  *state.StateStore
	pub    interfaces.IEventPublisher
	rec    *activity.Recorder
	Logger *logger.Logger

	mu    sync.RWMutex
	state State
	conn  Conn
	cred  models.Credential

	switchCh chan struct{}
	pushes   chan codec.Frame

	live     atomic.Int32
	maxLive  atomic.Int32
	sessions atomic.Int64

	forgotten map[string]bool // dispatcher only
}

func NewLink(opts Options, dialer Dialer, cred models.Credential, store *state.StateStore,
	pub interfaces.IEventPublisher, rec *activity.Recorder, log *logger.Logger) *Link {

	opts.applyDefaults()
	if log == nil {
		log = logger.NewNopLogger()
	}
	l := &Link{
		opts:     opts,
		dialer:   dialer,
		corr:     correlator.NewCorrelator(opts.RequestTimeout, opts.Clock.Now),
		subs:     NewSubscriptions(),
		store:    store,
		pub:      pub,
		rec:      rec,
		Logger:   log,
		cred:     cred,
		switchCh: make(chan struct{}, 1),
		pushes:   make(chan codec.Frame, dispatchQueue),

		forgotten: make(map[string]bool),
	}
	for _, sym := range opts.Symbols {
		l.subs.Acquire(SystemOwner, sym)
	}
	return l
}

// -----------------------------------------------------------------------------
// Supervisor
// -----------------------------------------------------------------------------

// Run drives the state machine until ctx is cancelled. Connection attempts
// are strictly sequential, so at most one socket is ever live.
func (l *Link) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); l.dispatch(ctx) }()
	go func() { defer wg.Done(); l.sweep(ctx) }()
	defer wg.Wait()

	backoff := helpers.NewBackoff(l.opts.ReconnectBase, l.opts.ReconnectMax)
	for ctx.Err() == nil {
		// a pending switch is satisfied by the attempt we are about to make
		select {
		case <-l.switchCh:
		default:
		}

		target := l.endpoint()
		l.setState(StateConnecting, "connecting to %s", redactURL(target))
		conn, err := l.dialer.Dial(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := backoff.Next()
			terr := helpers.NewTransportError("connect failed", err)
			if !l.waitReconnect(ctx, delay, "%v; retrying in %s", terr, delay) {
				break
			}
			continue
		}
		backoff.Reset()

		switched, cause := l.serve(ctx, conn)
		if ctx.Err() != nil {
			break
		}
		if switched {
			l.setState(StateDisconnected, "disconnected for account switch")
			continue
		}

		delay := backoff.Next()
		terr := helpers.NewTransportError("connection lost", cause)
		if !l.waitReconnect(ctx, delay, "%v; reconnecting in %s", terr, delay) {
			break
		}
	}

	l.setState(StateDisconnected, "link stopped")
}

// waitReconnect arms the backoff timer, enters Reconnecting and waits for
// the timer, a credential switch or cancellation.
func (l *Link) waitReconnect(ctx context.Context, delay time.Duration, format string, args ...interface{}) bool {
	timer := l.opts.Clock.NewTimer(delay)
	defer timer.Stop()
	l.setState(StateReconnecting, format, args...)

	select {
	case <-timer.C():
		return true
	case <-l.switchCh:
		return true
	case <-ctx.Done():
		return false
	}
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// serve runs one connection until it fails, a switch is requested or ctx
// ends. Every in-flight request is failed with ErrLinkDown on the way out.
func (l *Link) serve(ctx context.Context, conn Conn) (switched bool, cause error) {
	n := l.live.Add(1)
	for {
		max := l.maxLive.Load()
		if n <= max || l.maxLive.CompareAndSwap(max, n) {
			break
		}
	}
	l.sessions.Add(1)

	sessCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.subs.ClearUpstreamIDs()

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(sessCtx, conn) }()

	var wg sync.WaitGroup
	heartbeat := l.opts.Clock.NewTicker(l.opts.HeartbeatInterval)
	wg.Add(1)
	go func() { defer wg.Done(); l.heartbeat(sessCtx, conn, heartbeat) }()

	l.setState(StateConnected, "connected")
	wg.Add(1)
	go func() { defer wg.Done(); l.authorize(sessCtx) }()

	readDone := false
	select {
	case cause = <-readErr:
		readDone = true
	case <-l.switchCh:
		switched = true
	case <-ctx.Done():
	}

	// Teardown: stop session goroutines, close the socket, then fail
	// whatever is still pending.
	cancel()
	heartbeat.Stop()
	_ = conn.Close()
	if !readDone {
		<-readErr
	}
	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()
	if failed := l.corr.FailAll(helpers.ErrLinkDown); failed > 0 {
		l.Logger.Warning("failed %d in-flight requests on disconnect", failed)
	}
	wg.Wait()
	l.live.Add(-1)

	if cause == nil {
		cause = errors.New("closed")
	}
	return switched, cause
}

// -----------------------------------------------------------------------------

func (l *Link) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := codec.Decode(data)
		if err != nil {
			l.Logger.Warning("dropping undecodable frame: %v", err)
			continue
		}

		resolved := frame.ReqID != 0 && l.corr.Resolve(frame.ReqID, frame)
		if resolved && !isPush(frame.MsgType) {
			continue
		}
		if !resolved && frame.MsgType == "ping" {
			continue
		}
		select {
		case l.pushes <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isPush(msgType string) bool {
	switch msgType {
	case "tick", "balance", "proposal_open_contract":
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

func (l *Link) heartbeat(ctx context.Context, conn Conn, ticker utils.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := l.write(conn, codec.NewPing()); err != nil {
				l.Logger.Warning("heartbeat failed: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (l *Link) sweep(ctx context.Context) {
	ticker := l.opts.Clock.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if n := l.corr.TimeoutSweep(l.opts.Clock.Now()); n > 0 {
				l.Logger.Warning("%d requests timed out", n)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

func (l *Link) authorize(ctx context.Context) {
	cred := l.Credential()
	if cred.IsZero() {
		l.record(models.SeverityWarn, "no credential configured; link stays unauthorized")
		return
	}

	l.setState(StateAuthorizing, "authorizing %s", cred)
	frame, err := l.Request(ctx, codec.NewAuthorize(cred.Token))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, helpers.ErrLinkDown) {
			return
		}
		aerr := helpers.NewAuthorizationError("authorization failed", err)
		l.setStateSeverity(StateConnected, models.SeverityError, "%v", aerr)
		return
	}
	auth, ok := frame.Body.(*codec.Authorize)
	if !ok {
		l.setStateSeverity(StateConnected, models.SeverityError, "authorization failed: unexpected reply %s", frame.MsgType)
		return
	}

	acc := accountFromAuthorize(auth)
	l.store.SetAccountList(summariesFromAuthorize(auth))
	l.store.SetAccount(acc)
	l.mu.Lock()
	l.cred.LoginID = acc.ID
	l.mu.Unlock()

	l.setState(StateAuthorized, "authorized as %s (%s, %s)", acc.ID, acc.Class, acc.Currency)
	l.publish(models.MEvent{Type: models.EventAccount, Data: acc})
	l.publish(models.MEvent{Type: models.EventBalance, Data: models.MBalanceUpdate{
		AccountID: acc.ID, Balance: acc.Balance, Currency: acc.Currency,
	}})

	l.restoreSubscriptions(ctx)
}

// restoreSubscriptions re-issues every wanted tick stream plus the balance
// and open-contract streams, then refreshes the portfolio.
func (l *Link) restoreSubscriptions(ctx context.Context) {
	conn := l.currentConn()
	if conn == nil {
		return
	}
	for _, sym := range l.subs.Symbols() {
		if err := l.write(conn, codec.NewTicksSubscribe(sym)); err != nil {
			l.Logger.Warning("resubscribe %s failed: %v", sym, err)
			return
		}
	}
	if err := l.write(conn, codec.NewBalanceSubscribe()); err != nil {
		return
	}
	if err := l.write(conn, codec.NewOpenContractSubscribe()); err != nil {
		return
	}

	frame, err := l.Request(ctx, codec.NewPortfolio())
	if err != nil {
		if ctx.Err() == nil {
			l.record(models.SeverityWarn, "portfolio refresh failed: %v", err)
		}
		return
	}
	if pf, ok := frame.Body.(*codec.Portfolio); ok {
		l.applyPortfolio(pf)
	}
}

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// Request sends req with a fresh correlation id and waits for the reply,
// the request timeout, a disconnect or ctx.
func (l *Link) Request(ctx context.Context, req codec.Request) (codec.Frame, error) {
	id, pending := l.corr.Issue()
	req.SetReqID(id)

	conn := l.currentConn()
	if conn == nil {
		l.corr.Cancel(id)
		return codec.Frame{}, helpers.Wrap(helpers.ErrNotConnected, "%s", req.Kind())
	}
	if err := l.write(conn, req); err != nil {
		l.corr.Cancel(id)
		return codec.Frame{}, err
	}

	frame, err := pending.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		l.corr.Cancel(id)
	}
	return frame, err
}

// Send writes a request that expects no correlated reply.
func (l *Link) Send(req codec.Request) error {
	conn := l.currentConn()
	if conn == nil {
		return helpers.Wrap(helpers.ErrNotConnected, "%s", req.Kind())
	}
	return l.write(conn, req)
}

func (l *Link) write(conn Conn, req codec.Request) error {
	data, err := codec.Encode(req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(data); err != nil {
		return helpers.Wrap(helpers.ErrLinkDown, "send %s: %v", req.Kind(), err)
	}
	return nil
}

func (l *Link) currentConn() Conn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn
}

// -----------------------------------------------------------------------------
// Credentials and subscriptions
// -----------------------------------------------------------------------------

// SwitchCredential replaces the active credential and forces a reconnect.
func (l *Link) SwitchCredential(cred models.Credential) {
	l.mu.Lock()
	l.cred = cred
	l.mu.Unlock()
	l.store.ClearAccount()
	l.record(models.SeverityInfo, "switching account to %s", cred)

	select {
	case l.switchCh <- struct{}{}:
	default:
	}
}

// Credential returns a copy of the active credential.
func (l *Link) Credential() models.Credential {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cred
}

func (l *Link) Subscribe(owner, symbol string) {
	if !l.subs.Acquire(owner, symbol) || !l.IsAuthorized() {
		return
	}
	if err := l.Send(codec.NewTicksSubscribe(symbol)); err != nil {
		l.Logger.Warning("subscribe %s failed: %v", symbol, err)
	}
}

func (l *Link) Unsubscribe(owner, symbol string) {
	if last, id := l.subs.Release(owner, symbol); last {
		l.forget(symbol, id)
	}
}

// ReleaseOwner drops all of owner's symbols, e.g. when a client disconnects.
func (l *Link) ReleaseOwner(owner string) {
	for _, r := range l.subs.ReleaseOwner(owner) {
		l.forget(r.Symbol, r.UpstreamID)
	}
}

// forget ends an upstream stream. Without a known id the stream is ended
// when its next tick reveals the id.
func (l *Link) forget(symbol, id string) {
	if id == "" || !l.IsConnected() {
		return
	}
	if err := l.Send(codec.NewForget(id)); err != nil {
		l.Logger.Warning("forget %s failed: %v", symbol, err)
		return
	}
	l.Logger.Debug("forgot %s stream %s", symbol, id)
}

// -----------------------------------------------------------------------------
// State
// -----------------------------------------------------------------------------

func (l *Link) setState(next State, format string, args ...interface{}) {
	sev := models.SeverityInfo
	switch next {
	case StateAuthorized:
		sev = models.SeveritySuccess
	case StateReconnecting:
		sev = models.SeverityWarn
	}
	l.setStateSeverity(next, sev, format, args...)
}

// setStateSeverity performs one transition and records exactly one entry.
func (l *Link) setStateSeverity(next State, sev models.Severity, format string, args ...interface{}) {
	l.mu.Lock()
	if l.state == next {
		l.mu.Unlock()
		return
	}
	l.state = next
	l.mu.Unlock()
	l.record(sev, format, args...)
}

func (l *Link) record(sev models.Severity, format string, args ...interface{}) {
	if l.rec != nil {
		l.rec.Record(sev, subsystem, format, args...)
		return
	}
	l.Logger.Info(format, args...)
}

func (l *Link) publish(evt models.MEvent) {
	if l.pub != nil {
		l.pub.Publish(evt)
	}
}

// publishAfter applies a store write and publishes evt so that no client
// bootstraps between the two.
func (l *Link) publishAfter(apply func(), evt models.MEvent) {
	switch pub := l.pub.(type) {
	case nil:
		apply()
	case interfaces.IStatePublisher:
		pub.PublishAfter(apply, evt)
	default:
		apply()
		pub.Publish(evt)
	}
}

func (l *Link) CurrentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Link) State() string { return l.CurrentState().String() }

func (l *Link) IsConnected() bool { return l.CurrentState().TransportUp() }

func (l *Link) IsAuthorized() bool { return l.CurrentState() == StateAuthorized }

func (l *Link) Subscriptions() *Subscriptions { return l.subs }

func (l *Link) Correlator() *correlator.Correlator { return l.corr }

// MaxLiveConnections reports the highest number of simultaneously open
// sockets observed.
func (l *Link) MaxLiveConnections() int { return int(l.maxLive.Load()) }

// Sessions reports how many connections have been served.
func (l *Link) Sessions() int64 { return l.sessions.Load() }

// -----------------------------------------------------------------------------

func (l *Link) endpoint() string {
	cred := l.Credential()
	u, err := url.Parse(l.opts.URL)
	if err != nil {
		return l.opts.URL
	}
	if cred.AppID != "" {
		q := u.Query()
		q.Set("app_id", cred.AppID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}
