package upstream

import (
	"context"
	"time"

	"trading-relay/src/codec"
	"trading-relay/src/models"

	"github.com/shopspring/decimal"
)

// dispatch applies pushed frames to the store and publishes them, in the
// order they were read.
func (l *Link) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-l.pushes:
			l.handlePush(frame)
		}
	}
}

func (l *Link) handlePush(frame codec.Frame) {
	if frame.Error != nil {
		l.record(models.SeverityWarn, "upstream rejected %s: %s", frame.MsgType, frame.Error.Message)
		return
	}

	switch body := frame.Body.(type) {
	case *codec.Tick:
		l.onTick(body, frame.Subscription)
	case *codec.Balance:
		l.onBalance(body)
	case *codec.OpenContract:
		l.onOpenContract(body)
	case *codec.Portfolio:
		l.applyPortfolio(body)
	default:
		l.Logger.Debug("ignoring %s frame", frame.MsgType)
	}
}

// -----------------------------------------------------------------------------

func (l *Link) onTick(t *codec.Tick, sub *codec.SubscriptionInfo) {
	if t.Symbol == "" {
		return
	}
	streamID := t.ID
	if streamID == "" && sub != nil {
		streamID = sub.ID
	}
	if streamID != "" && !l.subs.SetUpstreamID(t.Symbol, streamID) {
		// nobody wants this symbol any more; end the stream once
		if !l.forgotten[streamID] {
			l.forgotten[streamID] = true
			l.forget(t.Symbol, streamID)
		}
		return
	}

	bid, ask := t.Prices()
	tick := models.NewTick(t.Symbol, bid, ask, t.Epoch)
	marked := 0
	l.publishAfter(func() {
		l.store.AppendTick(tick)
		marked = l.store.MarkPrice(t.Symbol, bid)
	}, models.MEvent{Type: models.EventTick, Data: tick})
	if marked > 0 {
		l.publishPositions()
	}
}

// -----------------------------------------------------------------------------

func (l *Link) onBalance(b *codec.Balance) {
	update := models.MBalanceUpdate{
		AccountID: b.LoginID,
		Balance:   b.Balance.Float(),
		Currency:  b.Currency,
	}
	acc := l.store.ApplyBalance(update)
	update.AccountID = acc.ID
	update.Currency = acc.Currency
	l.publish(models.MEvent{Type: models.EventBalance, Data: update})
}

// -----------------------------------------------------------------------------

func (l *Link) onOpenContract(oc *codec.OpenContract) {
	if oc.ContractID == 0 {
		return
	}

	if oc.IsSold {
		if pos, ok := l.store.RemovePosition(oc.ContractID); ok {
			profit := decimal.NewFromFloat(oc.Profit.Float()).Round(2)
			l.store.RealizeProfit(profit)
			l.record(models.SeverityInfo, "contract %d on %s closed, profit %s", oc.ContractID, pos.Symbol, profit.StringFixed(2))
			if l.rec != nil {
				l.rec.Trade(models.MTradeRecord{
					Event: "close", ContractID: oc.ContractID, Symbol: pos.Symbol, Direction: pos.Direction,
					Stake: pos.Size, Price: oc.BidPrice.Float(), Profit: profit.InexactFloat64(), Detail: oc.Status,
				})
			}
		}
		l.publishPositions()
		return
	}

	updated := l.store.UpdatePosition(oc.ContractID, func(p *models.MPosition) {
		if oc.CurrentSpot != 0 {
			p.LastPrice = oc.CurrentSpot.Float()
		}
		if p.EntryPrice == 0 {
			p.EntryPrice = oc.EntrySpot.Float()
		}
		p.ProfitLoss = oc.Profit.Float()
	})
	if !updated {
		l.store.UpsertPosition(positionFromOpenContract(oc))
	}
	l.publishPositions()
}

// -----------------------------------------------------------------------------

// applyPortfolio replaces the position list, keeping live fields already
// known for contracts that survive.
func (l *Link) applyPortfolio(pf *codec.Portfolio) {
	known := make(map[int64]models.MPosition)
	for _, p := range l.store.ListPositions() {
		known[p.ContractID] = p
	}

	list := make([]models.MPosition, 0, len(pf.Contracts))
	for _, c := range pf.Contracts {
		p := models.MPosition{
			ContractID: c.ContractID,
			Symbol:     c.Symbol,
			Direction:  c.ContractType,
			Size:       c.BuyPrice.Float(),
			BuyPrice:   c.BuyPrice.Float(),
			OpenTime:   time.Unix(c.PurchaseTime, 0).UTC(),
		}
		if prev, ok := known[c.ContractID]; ok {
			p.EntryPrice = prev.EntryPrice
			p.LastPrice = prev.LastPrice
			p.ProfitLoss = prev.ProfitLoss
			p.StopLoss = prev.StopLoss
			p.TakeProfit = prev.TakeProfit
		}
		list = append(list, p)
	}
	l.store.ReplacePositions(list)
	l.publishPositions()
}

func (l *Link) publishPositions() {
	l.publish(models.MEvent{Type: models.EventPositions, Data: l.store.ListPositions()})
}

// -----------------------------------------------------------------------------
// Mapping
// -----------------------------------------------------------------------------

func positionFromOpenContract(oc *codec.OpenContract) models.MPosition {
	return models.MPosition{
		ContractID: oc.ContractID,
		Symbol:     oc.Underlying,
		Direction:  oc.ContractType,
		Size:       oc.BuyPrice.Float(),
		BuyPrice:   oc.BuyPrice.Float(),
		EntryPrice: oc.EntrySpot.Float(),
		LastPrice:  oc.CurrentSpot.Float(),
		ProfitLoss: oc.Profit.Float(),
		OpenTime:   time.Unix(oc.DateStart, 0).UTC(),
	}
}

func accountClass(virtual codec.Flag) models.AccountClass {
	if virtual {
		return models.AccountDemo
	}
	return models.AccountLive
}

func accountFromAuthorize(a *codec.Authorize) models.MAccount {
	return models.MAccount{
		ID:       a.LoginID,
		Name:     a.Fullname,
		Email:    a.Email,
		Balance:  a.Balance.Float(),
		Equity:   a.Balance.Float(),
		Currency: a.Currency,
		Class:    accountClass(a.IsVirtual),
	}
}

func summariesFromAuthorize(a *codec.Authorize) []models.MAccountSummary {
	out := make([]models.MAccountSummary, 0, len(a.AccountList))
	for _, e := range a.AccountList {
		if e.IsDisabled {
			continue
		}
		name := e.LoginID
		if e.LoginID == a.LoginID && a.Fullname != "" {
			name = a.Fullname
		}
		out = append(out, models.MAccountSummary{
			ID:       e.LoginID,
			Name:     name,
			Class:    accountClass(e.IsVirtual),
			Currency: e.Currency,
		})
	}
	if len(out) == 0 {
		out = append(out, models.MAccountSummary{
			ID: a.LoginID, Name: a.Fullname, Class: accountClass(a.IsVirtual), Currency: a.Currency,
		})
	}
	return out
}
