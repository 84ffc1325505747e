package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trading-relay/src/activity"
	"trading-relay/src/codec"
	"trading-relay/src/helpers"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
	"trading-relay/src/risk"
	"trading-relay/src/state"

	"github.com/dgraph-io/ristretto"
)

const (
	subsystem = "gateway"

	// settingsOwner holds the upstream interest in the active symbol.
	settingsOwner = "settings"

	// strategyName is reported in the status snapshot; trades are manual.
	strategyName = "manual"

	// MaxLogs is the largest log tail returned in one call.
	MaxLogs = 500
)

// Toggle commands.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandPanic = "panic"
)

// Options tunes the command handlers.
type Options struct {
	AwaitFill       bool
	DefaultCurrency string
	DefaultAppID    string
	Cooldown        time.Duration
	SymbolsTTL      time.Duration
	Now             func() time.Time
}

// -----------------------------------------------------------------------------

// Gateway implements the command handlers behind the REST and gRPC
// surfaces. Commands validate their input first, then act on the store or
// through the upstream link.
type Gateway struct {
	opts   Options
	link   interfaces.IUpstreamLink
	store  *state.StateStore
	rec    *activity.Recorder
	pub    interfaces.IEventPublisher
	guard  *risk.Guard
	Logger *logger.Logger

	credMu     sync.RWMutex
	creds      []models.Credential
	activeCred string

	symbols *ristretto.Cache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(opts Options, link interfaces.IUpstreamLink, store *state.StateStore, rec *activity.Recorder,
	pub interfaces.IEventPublisher, creds []models.Credential, log *logger.Logger) (*Gateway, error) {

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if opts.SymbolsTTL <= 0 {
		opts.SymbolsTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, helpers.NewConfigurationError("symbols cache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		opts:    opts,
		link:    link,
		store:   store,
		rec:     rec,
		pub:     pub,
		guard:   risk.NewGuard(opts.Cooldown, opts.Now),
		Logger:  log,
		creds:   append([]models.Credential(nil), creds...),
		symbols: cache,
		ctx:     ctx,
		cancel:  cancel,
	}
	if len(g.creds) > 0 {
		g.activeCred = g.creds[0].ID
	}
	if sym := store.GetSettings().ActiveSymbol; sym != "" {
		link.Subscribe(settingsOwner, sym)
	}
	return g, nil
}

// Close cancels background trade completions and waits for them.
func (g *Gateway) Close() {
	g.cancel()
	g.wg.Wait()
	g.symbols.Close()
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

// Status reads the snapshot from the store and the link state; it never
// calls upstream.
func (g *Gateway) Status() models.MStatus {
	sess := g.store.Session()
	st := models.MStatus{
		IsConnected:    g.link.IsConnected(),
		IsAuthorized:   g.link.IsAuthorized(),
		IsRunning:      sess.Running,
		LinkState:      g.link.State(),
		Strategy:       strategyName,
		Symbol:         g.store.GetSettings().ActiveSymbol,
		TradesExecuted: sess.Trades,
		ProfitToday:    sess.ProfitToday,
		LastTrade:      sess.LastTrade,
	}
	if acc, ok := g.store.GetAccount(); ok {
		st.Account = acc.ID
	}
	if sess.Running && !sess.StartedAt.IsZero() {
		st.Uptime = int64(g.opts.Now().Sub(sess.StartedAt).Seconds())
	}
	return st
}

// -----------------------------------------------------------------------------
// Toggle
// -----------------------------------------------------------------------------

// Toggle applies start, stop or panic and returns the resulting run flag.
// Panic closes every open position best-effort.
func (g *Gateway) Toggle(ctx context.Context, command string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case CommandStart:
		if !g.link.IsAuthorized() {
			return g.store.IsRunning(), helpers.Wrap(helpers.ErrNotAuthorized, "cannot start, link is %s", g.link.State())
		}
		if !g.store.SetRunning(true) {
			g.rec.Success(subsystem, "trading started")
		}
		return true, nil

	case CommandStop:
		if g.store.SetRunning(false) {
			g.rec.Info(subsystem, "trading stopped")
		}
		return false, nil

	case CommandPanic:
		g.store.SetRunning(false)
		g.panicClose(ctx)
		return false, nil

	default:
		return g.store.IsRunning(), helpers.NewValidationError("unknown command %q", command)
	}
}

func (g *Gateway) panicClose(ctx context.Context) {
	open := g.store.ListPositions()
	g.rec.Warn(subsystem, "panic stop, closing %d position(s)", len(open))

	var (
		wg     sync.WaitGroup
		closed atomic.Int64
	)
	for _, p := range open {
		wg.Add(1)
		go func(contractID int64) {
			defer wg.Done()
			if _, err := g.ClosePosition(ctx, contractID); err != nil {
				g.rec.Error(subsystem, "panic close of contract %d failed: %v", contractID, err)
				return
			}
			closed.Add(1)
		}(p.ContractID)
	}
	wg.Wait()
	if len(open) > 0 {
		g.rec.Info(subsystem, "panic stop closed %d of %d position(s)", closed.Load(), len(open))
	}
}

// -----------------------------------------------------------------------------
// Logs and settings
// -----------------------------------------------------------------------------

// Logs returns up to n entries, newest first.
func (g *Gateway) Logs(n int) []models.MLogEntry {
	if n <= 0 || n > MaxLogs {
		n = MaxLogs
	}
	return g.store.Logs(n)
}

func (g *Gateway) Settings() models.MSettings {
	return g.store.GetSettings()
}

// UpdateSettings merges patch shallowly. A new active symbol moves the
// gateway's own upstream interest to it.
func (g *Gateway) UpdateSettings(patch models.MSettingsPatch) (models.MSettings, error) {
	if err := validatePatch(patch); err != nil {
		return g.store.GetSettings(), err
	}

	prev := g.store.GetSettings()
	next := g.store.UpdateSettings(patch)
	if next.ActiveSymbol != prev.ActiveSymbol {
		if prev.ActiveSymbol != "" {
			g.link.Unsubscribe(settingsOwner, prev.ActiveSymbol)
		}
		g.link.Subscribe(settingsOwner, next.ActiveSymbol)
	}
	g.rec.Info(subsystem, "settings updated: %s", strings.Join(patchFields(patch), ", "))
	return next, nil
}

func validatePatch(p models.MSettingsPatch) error {
	if p.IsEmpty() {
		return helpers.NewValidationError("no settings supplied")
	}
	if p.GridSize != nil && *p.GridSize <= 0 {
		return helpers.NewValidationError("gridSize must be positive")
	}
	if p.RiskPercent != nil && (*p.RiskPercent < 0 || *p.RiskPercent > 100) {
		return helpers.NewValidationError("riskPercent must be within 0..100")
	}
	if p.MaxLots != nil && *p.MaxLots < 0 {
		return helpers.NewValidationError("maxLots must not be negative")
	}
	if p.ConfidenceThreshold != nil && (*p.ConfidenceThreshold < 0 || *p.ConfidenceThreshold > 1) {
		return helpers.NewValidationError("confidenceThreshold must be within 0..1")
	}
	if p.MaxOpenTrades != nil && *p.MaxOpenTrades < 0 {
		return helpers.NewValidationError("maxOpenTrades must not be negative")
	}
	if p.DrawdownLimit != nil && (*p.DrawdownLimit < 0 || *p.DrawdownLimit > 100) {
		return helpers.NewValidationError("drawdownLimit must be within 0..100")
	}
	if p.ActiveSymbol != nil && strings.TrimSpace(*p.ActiveSymbol) == "" {
		return helpers.NewValidationError("activeSymbol must not be empty")
	}
	return nil
}

func patchFields(p models.MSettingsPatch) []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.GridSize != nil, "gridSize")
	add(p.RiskPercent != nil, "riskPercent")
	add(p.MaxLots != nil, "maxLots")
	add(p.ConfidenceThreshold != nil, "confidenceThreshold")
	add(p.StopLossPoints != nil, "stopLossPoints")
	add(p.TakeProfitPoints != nil, "takeProfitPoints")
	add(p.MaxOpenTrades != nil, "maxOpenTrades")
	add(p.DrawdownLimit != nil, "drawdownLimit")
	add(p.ActiveSymbol != nil, "activeSymbol")
	return out
}

// -----------------------------------------------------------------------------

func (g *Gateway) publish(evt models.MEvent) {
	if g.pub != nil {
		g.pub.Publish(evt)
	}
}

func (g *Gateway) publishPositions() {
	g.publish(models.MEvent{Type: models.EventPositions, Data: g.store.ListPositions()})
}

// bodyAs extracts the typed body of a reply.
func bodyAs[T codec.Message](frame codec.Frame) (T, error) {
	body, ok := frame.Body.(T)
	if !ok {
		var zero T
		return zero, helpers.NewDecodeError(fmt.Sprintf("unexpected %q reply", frame.MsgType), nil)
	}
	return body, nil
}
