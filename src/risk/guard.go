package risk

import (
	"strings"
	"sync"
	"time"

	"trading-relay/src/helpers"
	"trading-relay/src/models"

	"github.com/shopspring/decimal"
)

const (
	// DefaultMinStake applies when the contract catalogue gives no minimum.
	DefaultMinStake = 0.35
	// DefaultMaxStake applies when the contract catalogue gives no maximum.
	DefaultMaxStake = 5000.0
	// MultiplierMinStake is the hard floor for multiplier contracts.
	MultiplierMinStake = 1.0
)

// -----------------------------------------------------------------------------

// Input is the state a trade is checked against.
type Input struct {
	OpenPositions int
	Settings      models.MSettings
	Account       string
	Balance       float64
	LastTrade     time.Time // zero when no trade yet
}

// Guard rejects trades that would exceed the open-position limit, the
// daily drawdown limit, or that arrive inside the cooldown window.
type Guard struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time

	day   string
	start map[string]decimal.Decimal // account id -> first balance today
}

func NewGuard(cooldown time.Duration, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{cooldown: cooldown, now: now, start: make(map[string]decimal.Decimal)}
}

// -----------------------------------------------------------------------------

// ObserveBalance records the first balance seen each UTC day for account
// as its drawdown reference, and returns that reference.
func (g *Guard) ObserveBalance(account string, balance float64) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	today := g.now().UTC().Format("2006-01-02")
	if today != g.day {
		g.day = today
		g.start = make(map[string]decimal.Decimal)
	}
	ref, ok := g.start[account]
	if !ok || ref.IsZero() {
		ref = decimal.NewFromFloat(balance)
		g.start[account] = ref
	}
	return ref
}

// Check returns nil when the trade is allowed, or an error wrapping
// helpers.ErrRiskRejected that names the reason.
func (g *Guard) Check(in Input) error {
	if max := in.Settings.MaxOpenTrades; max > 0 && in.OpenPositions >= max {
		return helpers.Wrap(helpers.ErrRiskRejected, "max open trades reached (%d)", in.OpenPositions)
	}

	if g.cooldown > 0 && !in.LastTrade.IsZero() {
		if elapsed := g.now().Sub(in.LastTrade); elapsed < g.cooldown {
			remaining := (g.cooldown - elapsed).Round(time.Second)
			return helpers.Wrap(helpers.ErrRiskRejected, "cooldown active, %s remaining", remaining)
		}
	}

	if limit := in.Settings.DrawdownLimit; limit > 0 {
		start := g.ObserveBalance(in.Account, in.Balance)
		if start.IsPositive() {
			loss := start.Sub(decimal.NewFromFloat(in.Balance))
			pct := loss.Div(start).Mul(decimal.NewFromInt(100))
			if pct.GreaterThanOrEqual(decimal.NewFromFloat(limit)) {
				return helpers.Wrap(helpers.ErrRiskRejected, "daily drawdown limit hit (-%s)", loss.StringFixed(2))
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// ClampStake forces requested into [min, max] using catalogue limits
// (zero means unknown) and rounds to cents. Multiplier contracts never go
// below MultiplierMinStake.
func ClampStake(requested, min, max float64, contractType string) (float64, bool) {
	lo := decimal.NewFromFloat(min)
	if min <= 0 {
		lo = decimal.NewFromFloat(DefaultMinStake)
	}
	if IsMultiplier(contractType) && lo.LessThan(decimal.NewFromFloat(MultiplierMinStake)) {
		lo = decimal.NewFromFloat(MultiplierMinStake)
	}
	hi := decimal.NewFromFloat(max)
	if max <= 0 {
		hi = decimal.NewFromFloat(DefaultMaxStake)
	}

	stake := decimal.NewFromFloat(requested)
	clamped := false
	if stake.LessThan(lo) {
		stake, clamped = lo, true
	} else if stake.GreaterThan(hi) {
		stake, clamped = hi, true
	}
	return stake.Round(2).InexactFloat64(), clamped
}

// IsMultiplier reports whether contractType is MULTUP/MULTDOWN.
func IsMultiplier(contractType string) bool {
	return strings.HasPrefix(strings.ToUpper(contractType), "MULT")
}
