package hub

import (
	"sort"

	"trading-relay/src/models"
	"trading-relay/src/state"
)

// StoreBootstrap replays the store contents as downstream frames: account,
// balance, positions, the log tail and the tick tail per symbol.
func StoreBootstrap(store *state.StateStore, tickTail, logTail int) BootstrapFunc {
	return func() []models.MEvent {
		snap := store.Snapshot(tickTail, logTail)
		events := make([]models.MEvent, 0, 3+len(snap.Logs)+len(snap.Ticks)*tickTail)

		if snap.Account != nil {
			events = append(events,
				models.MEvent{Type: models.EventAccount, Data: *snap.Account},
				models.MEvent{Type: models.EventBalance, Data: models.MBalanceUpdate{
					AccountID: snap.Account.ID,
					Balance:   snap.Account.Balance,
					Currency:  snap.Account.Currency,
				}},
			)
		}
		events = append(events, models.MEvent{Type: models.EventPositions, Data: snap.Positions})

		for _, entry := range snap.Logs {
			events = append(events, models.MEvent{Type: models.EventLog, Data: entry})
		}

		symbols := make([]string, 0, len(snap.Ticks))
		for sym := range snap.Ticks {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			for _, tick := range snap.Ticks[sym] {
				events = append(events, models.MEvent{Type: models.EventTick, Data: tick})
			}
		}
		return events
	}
}
