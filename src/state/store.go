package state

import (
	"sort"
	"sync"
	"time"

	"trading-relay/src/models"
	"trading-relay/src/utils"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTickHistory is the number of recent ticks kept per symbol.
	DefaultTickHistory = 50
	// DefaultLogHistory is the number of activity log entries kept.
	DefaultLogHistory = 500
)

// -----------------------------------------------------------------------------

// Snapshot is the bootstrap batch replayed to a newly connected client.
type Snapshot struct {
	Account   *models.MAccount
	Positions []models.MPosition
	Logs      []models.MLogEntry        // oldest first
	Ticks     map[string][]models.MTick // oldest first per symbol
}

// -----------------------------------------------------------------------------

// StateStore is the in-process, thread-safe snapshot of account, positions,
// ticks, activity log, settings and session counters. Every method is one
// critical section.
type StateStore struct {
	mu sync.RWMutex

	account    models.MAccount
	hasAccount bool
	accounts   []models.MAccountSummary

	positions map[int64]models.MPosition

	ticks       map[string]*utils.RingBuffer[models.MTick]
	tickHistory int

	logs *utils.RingBuffer[models.MLogEntry]

	settings models.MSettings

	running     bool
	startedAt   time.Time
	day         string
	trades      int
	profitToday decimal.Decimal
	lastTrade   *time.Time

	now func() time.Time
}

// NewStateStore creates a store; non-positive caps fall back to defaults.
func NewStateStore(tickHistory, logHistory int, now func() time.Time) *StateStore {
	if tickHistory <= 0 {
		tickHistory = DefaultTickHistory
	}
	if logHistory <= 0 {
		logHistory = DefaultLogHistory
	}
	if now == nil {
		now = time.Now
	}
	s := &StateStore{
		positions:   make(map[int64]models.MPosition),
		ticks:       make(map[string]*utils.RingBuffer[models.MTick]),
		tickHistory: tickHistory,
		logs:        utils.NewRingBuffer[models.MLogEntry](logHistory),
		settings:    models.DefaultSettings(),
		now:         now,
	}
	s.day = dayKey(now())
	return s
}

// -----------------------------------------------------------------------------
// Account
// -----------------------------------------------------------------------------

func (s *StateStore) GetAccount() (models.MAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.hasAccount
}

func (s *StateStore) SetAccount(acc models.MAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = acc
	s.hasAccount = true
	s.markActiveLocked()
}

// ClearAccount forgets the active account, e.g. after a credential swap.
func (s *StateStore) ClearAccount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = models.MAccount{}
	s.hasAccount = false
	s.accounts = nil
	s.positions = make(map[int64]models.MPosition)
}

// ApplyBalance updates id, balance, equity and currency from a balance push;
// every other account field is left as it was.
func (s *StateStore) ApplyBalance(update models.MBalanceUpdate) models.MAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.AccountID != "" {
		s.account.ID = update.AccountID
	}
	s.account.Balance = update.Balance
	s.account.Equity = update.Balance
	if update.Currency != "" {
		s.account.Currency = update.Currency
	}
	s.hasAccount = true

	for i := range s.accounts {
		if s.accounts[i].ID == s.account.ID {
			s.accounts[i].Balance = update.Balance
			s.accounts[i].Equity = update.Balance
		}
	}
	return s.account
}

func (s *StateStore) SetAccountList(list []models.MAccountSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append([]models.MAccountSummary(nil), list...)
	s.markActiveLocked()
}

func (s *StateStore) AccountList() []models.MAccountSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MAccountSummary(nil), s.accounts...)
}

func (s *StateStore) markActiveLocked() {
	for i := range s.accounts {
		s.accounts[i].IsActive = s.hasAccount && s.accounts[i].ID == s.account.ID
		if s.accounts[i].IsActive {
			s.accounts[i].Balance = s.account.Balance
			s.accounts[i].Equity = s.account.Equity
		}
	}
}

// -----------------------------------------------------------------------------
// Positions
// -----------------------------------------------------------------------------

func (s *StateStore) UpsertPosition(p models.MPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ContractID] = p
}

// RemovePosition deletes a position and returns it.
func (s *StateStore) RemovePosition(contractID int64) (models.MPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[contractID]
	if ok {
		delete(s.positions, contractID)
	}
	return p, ok
}

func (s *StateStore) GetPosition(contractID int64) (models.MPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[contractID]
	return p, ok
}

// ReplacePositions swaps in an authoritative position list.
func (s *StateStore) ReplacePositions(list []models.MPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[int64]models.MPosition, len(list))
	for _, p := range list {
		s.positions[p.ContractID] = p
	}
}

// UpdatePosition applies fn to one position under the write lock.
func (s *StateStore) UpdatePosition(contractID int64, fn func(*models.MPosition)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[contractID]
	if !ok {
		return false
	}
	fn(&p)
	s.positions[contractID] = p
	return true
}

// MarkPrice sets the last-seen price of every position on symbol.
func (s *StateStore) MarkPrice(symbol string, price float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.positions {
		if p.Symbol == symbol {
			p.LastPrice = price
			s.positions[id] = p
			n++
		}
	}
	return n
}

// ListPositions returns positions ordered by open time, then contract id.
func (s *StateStore) ListPositions() []models.MPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPositionsLocked()
}

func (s *StateStore) listPositionsLocked() []models.MPosition {
	out := make([]models.MPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].OpenTime.Before(out[j].OpenTime)
		}
		return out[i].ContractID < out[j].ContractID
	})
	return out
}

func (s *StateStore) PositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// -----------------------------------------------------------------------------
// Ticks
// -----------------------------------------------------------------------------

func (s *StateStore) AppendTick(tick models.MTick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.ticks[tick.Symbol]
	if !ok {
		rb = utils.NewRingBuffer[models.MTick](s.tickHistory)
		s.ticks[tick.Symbol] = rb
	}
	rb.Append(tick)
}

// RecentTicks returns up to n ticks for symbol, oldest first.
func (s *StateStore) RecentTicks(symbol string, n int) []models.MTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rb, ok := s.ticks[symbol]
	if !ok {
		return []models.MTick{}
	}
	return rb.GetLatest(n)
}

// LatestTick returns the most recent tick across all symbols.
func (s *StateStore) LatestTick() (models.MTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest models.MTick
	found := false
	for _, rb := range s.ticks {
		if t, ok := rb.Last(); ok && (!found || t.Timestamp.After(latest.Timestamp)) {
			latest, found = t, true
		}
	}
	return latest, found
}

// -----------------------------------------------------------------------------
// Activity log
// -----------------------------------------------------------------------------

func (s *StateStore) AppendLog(entry models.MLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.Append(entry)
}

// Logs returns up to n entries, most recent first.
func (s *StateStore) Logs(n int) []models.MLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.GetNewestFirst(n)
}

func (s *StateStore) LogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Size()
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

func (s *StateStore) GetSettings() models.MSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings merges patch shallowly and returns the result.
func (s *StateStore) UpdateSettings(patch models.MSettingsPatch) models.MSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = patch.Apply(s.settings)
	return s.settings
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// SetRunning flips the run flag and returns the previous value. Starting
// records the start time used for uptime.
func (s *StateStore) SetRunning(running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.running
	if running && !prev {
		s.startedAt = s.now()
	}
	if !running {
		s.startedAt = time.Time{}
	}
	s.running = running
	return prev
}

func (s *StateStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RecordTrade counts one fill towards today's totals.
func (s *StateStore) RecordTrade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	now := s.now()
	s.trades++
	s.lastTrade = &now
}

// RealizeProfit adds a closed contract's profit to today's total.
func (s *StateStore) RealizeProfit(profit decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	s.profitToday = s.profitToday.Add(profit)
}

// Session returns the run flag and today's counters.
func (s *StateStore) Session() models.MSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	profit, _ := s.profitToday.Round(2).Float64()
	var last *time.Time
	if s.lastTrade != nil {
		t := *s.lastTrade
		last = &t
	}
	return models.MSession{
		Running:     s.running,
		StartedAt:   s.startedAt,
		Day:         s.day,
		Trades:      s.trades,
		ProfitToday: profit,
		LastTrade:   last,
	}
}

// LastTradeTime returns when the last fill was recorded.
func (s *StateStore) LastTradeTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastTrade == nil {
		return time.Time{}, false
	}
	return *s.lastTrade, true
}

func (s *StateStore) rollDayLocked() {
	today := dayKey(s.now())
	if today != s.day {
		s.day = today
		s.trades = 0
		s.profitToday = decimal.Zero
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// -----------------------------------------------------------------------------

// Snapshot copies everything a new client needs, using up to tickTail
// ticks per symbol and logTail log entries.
func (s *StateStore) Snapshot(tickTail, logTail int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Positions: s.listPositionsLocked(),
		Logs:      s.logs.GetLatest(logTail),
		Ticks:     make(map[string][]models.MTick, len(s.ticks)),
	}
	if s.hasAccount {
		acc := s.account
		snap.Account = &acc
	}
	for sym, rb := range s.ticks {
		snap.Ticks[sym] = rb.GetLatest(tickTail)
	}
	return snap
}
