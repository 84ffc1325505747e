package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trading-relay/src/codec"
	"trading-relay/src/helpers"
	"trading-relay/src/models"
	"trading-relay/src/risk"

	"github.com/shopspring/decimal"
)

// maxBuyPrice is the most the relay agrees to pay for a proposal.
const maxBuyPrice = 10000

// -----------------------------------------------------------------------------
// Place
// -----------------------------------------------------------------------------

// PlaceTrade validates req, checks the risk guard and runs the
// contracts_for → proposal → buy sequence. Unless AwaitFill is set the
// sequence completes in the background and the call returns as soon as
// it is submitted.
func (g *Gateway) PlaceTrade(ctx context.Context, req models.MTradeRequest) (models.MTradeResult, error) {
	req, err := g.normalizeTrade(req)
	if err != nil {
		return models.MTradeResult{Message: err.Error()}, err
	}
	if !g.link.IsAuthorized() {
		err := helpers.Wrap(helpers.ErrNotAuthorized, "cannot trade, link is %s", g.link.State())
		return models.MTradeResult{Message: err.Error()}, err
	}
	if err := g.checkRisk(); err != nil {
		g.rec.Warn(subsystem, "trade %s %s rejected: %v", req.ContractType, req.Symbol, err)
		return models.MTradeResult{Message: err.Error()}, err
	}

	if g.opts.AwaitFill {
		return g.execute(ctx, req)
	}

	g.rec.Info(subsystem, "submitting %s on %s, stake %.2f %s", req.ContractType, req.Symbol, req.Amount, req.Currency)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_, _ = g.execute(g.ctx, req)
	}()
	return models.MTradeResult{Success: true, Message: "trade submitted"}, nil
}

func (g *Gateway) normalizeTrade(req models.MTradeRequest) (models.MTradeRequest, error) {
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.ContractType = strings.ToUpper(strings.TrimSpace(req.ContractType))
	req.DurationUnit = strings.TrimSpace(req.DurationUnit)

	if req.Symbol == "" {
		return req, helpers.NewValidationError("symbol is required")
	}
	if req.ContractType == "" {
		return req, helpers.NewValidationError("contract_type is required")
	}
	if req.Amount <= 0 {
		return req, helpers.NewValidationError("amount must be positive")
	}
	if risk.IsMultiplier(req.ContractType) {
		if req.Multiplier < 0 {
			return req, helpers.NewValidationError("multiplier must not be negative")
		}
		req.Duration, req.DurationUnit = 0, ""
	} else {
		if req.Duration <= 0 {
			return req, helpers.NewValidationError("duration must be positive")
		}
		if req.DurationUnit == "" {
			req.DurationUnit = "t"
		}
		if !strings.Contains("tsmhd", req.DurationUnit) || len(req.DurationUnit) != 1 {
			return req, helpers.NewValidationError("duration_unit %q is not one of t, s, m, h, d", req.DurationUnit)
		}
	}
	if req.Currency == "" {
		if acc, ok := g.store.GetAccount(); ok && acc.Currency != "" {
			req.Currency = acc.Currency
		} else {
			req.Currency = g.opts.DefaultCurrency
		}
	}
	return req, nil
}

func (g *Gateway) checkRisk() error {
	in := risk.Input{
		OpenPositions: g.store.PositionCount(),
		Settings:      g.store.GetSettings(),
	}
	if acc, ok := g.store.GetAccount(); ok {
		in.Account = acc.ID
		in.Balance = acc.Balance
	}
	if last, ok := g.store.LastTradeTime(); ok {
		in.LastTrade = last
	}
	return g.guard.Check(in)
}

// execute runs the upstream round trips and applies the fill.
func (g *Gateway) execute(ctx context.Context, req models.MTradeRequest) (models.MTradeResult, error) {
	fail := func(stage string, err error) (models.MTradeResult, error) {
		g.rec.Error(subsystem, "%s %s failed at %s: %v", req.ContractType, req.Symbol, stage, err)
		g.rec.Trade(models.MTradeRecord{
			Event: "failed", Symbol: req.Symbol, Direction: req.ContractType,
			Stake: req.Amount, Detail: fmt.Sprintf("%s: %v", stage, err),
		})
		return models.MTradeResult{Message: err.Error()}, err
	}

	// catalogue
	frame, err := g.link.Request(ctx, &codec.ContractsForRequest{ContractsFor: req.Symbol, Currency: req.Currency})
	if err != nil {
		return fail("contracts_for", err)
	}
	catalogue, err := bodyAs[*codec.ContractsFor](frame)
	if err != nil {
		return fail("contracts_for", err)
	}
	offer, ok := pickOffer(catalogue.Available, req.ContractType)
	if !ok {
		return fail("contracts_for", helpers.NewValidationError("no contracts offered on %s", req.Symbol))
	}

	minStake := offer.MinContractMeasure.Float()
	if minStake <= 0 {
		minStake = offer.MinStake.Float()
	}
	stake, clamped := risk.ClampStake(req.Amount, minStake, offer.MaxContractMeasure.Float(), req.ContractType)
	if clamped {
		g.rec.Warn(subsystem, "stake adjusted from %.2f to %.2f for %s", req.Amount, stake, req.ContractType)
	}
	if risk.IsMultiplier(req.ContractType) && req.Multiplier == 0 && len(offer.Multiplier) > 0 {
		req.Multiplier = offer.Multiplier[0]
	}

	// proposal
	proposalReq := &codec.ProposalRequest{
		Proposal:     1,
		Amount:       stake,
		Basis:        "stake",
		ContractType: req.ContractType,
		Currency:     req.Currency,
		Duration:     req.Duration,
		DurationUnit: req.DurationUnit,
		Multiplier:   req.Multiplier,
		Symbol:       req.Symbol,
	}
	if req.StopLoss != nil || req.TakeProfit != nil {
		proposalReq.LimitOrder = &codec.LimitOrder{StopLoss: req.StopLoss, TakeProfit: req.TakeProfit}
	}
	frame, err = g.link.Request(ctx, proposalReq)
	if err != nil {
		return fail("proposal", err)
	}
	proposal, err := bodyAs[*codec.Proposal](frame)
	if err != nil {
		return fail("proposal", err)
	}
	if proposal.ID == "" {
		return fail("proposal", helpers.NewDecodeError("proposal reply without id", nil))
	}

	// buy
	frame, err = g.link.Request(ctx, &codec.BuyRequest{Buy: proposal.ID, Price: maxBuyPrice})
	if err != nil {
		return fail("buy", err)
	}
	fill, err := bodyAs[*codec.Buy](frame)
	if err != nil {
		return fail("buy", err)
	}

	g.applyFill(req, stake, proposal, fill)
	return models.MTradeResult{
		Success:    true,
		Message:    fmt.Sprintf("contract %d opened", fill.ContractID),
		ContractID: fill.ContractID,
		BuyPrice:   fill.BuyPrice.Float(),
	}, nil
}

func (g *Gateway) applyFill(req models.MTradeRequest, stake float64, proposal *codec.Proposal, fill *codec.Buy) {
	opened := g.opts.Now().UTC()
	if fill.StartTime > 0 {
		opened = time.Unix(fill.StartTime, 0).UTC()
	}
	pos := models.MPosition{
		ContractID: fill.ContractID,
		Symbol:     req.Symbol,
		Direction:  req.ContractType,
		Size:       stake,
		BuyPrice:   fill.BuyPrice.Float(),
		EntryPrice: proposal.Spot.Float(),
		LastPrice:  proposal.Spot.Float(),
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   opened,
	}
	// an open-contract push may have beaten the buy reply
	known := g.store.UpdatePosition(fill.ContractID, func(p *models.MPosition) {
		p.Size = stake
		p.StopLoss = req.StopLoss
		p.TakeProfit = req.TakeProfit
	})
	if !known {
		g.store.UpsertPosition(pos)
	}
	g.store.RecordTrade()
	g.publishPositions()

	g.rec.Success(subsystem, "opened %s on %s, contract %d at %.2f", req.ContractType, req.Symbol, fill.ContractID, pos.BuyPrice)
	g.rec.Notify("Trade opened", fmt.Sprintf("%s %s %.2f %s", req.ContractType, req.Symbol, pos.BuyPrice, req.Currency))
	g.rec.Trade(models.MTradeRecord{
		Event: "open", ContractID: fill.ContractID, Symbol: req.Symbol, Direction: req.ContractType,
		Stake: stake, Price: pos.BuyPrice, Detail: fill.LongCode,
	})
}

// pickOffer returns the offer for contractType, or the first one.
func pickOffer(offers []codec.ContractOffer, contractType string) (codec.ContractOffer, bool) {
	if len(offers) == 0 {
		return codec.ContractOffer{}, false
	}
	for _, o := range offers {
		if strings.EqualFold(o.ContractType, contractType) {
			return o, true
		}
	}
	return offers[0], true
}

// -----------------------------------------------------------------------------
// Close
// -----------------------------------------------------------------------------

// ClosePosition sells contractID at market.
func (g *Gateway) ClosePosition(ctx context.Context, contractID int64) (models.MTradeResult, error) {
	if contractID <= 0 {
		err := helpers.NewValidationError("contract_id is required")
		return models.MTradeResult{Message: err.Error()}, err
	}
	pos, ok := g.store.GetPosition(contractID)
	if !ok {
		err := helpers.Wrap(helpers.ErrPositionNotFound, "contract %d", contractID)
		return models.MTradeResult{Message: err.Error()}, err
	}

	frame, err := g.link.Request(ctx, &codec.SellRequest{Sell: contractID, Price: 0})
	if err != nil {
		g.rec.Error(subsystem, "close of contract %d failed: %v", contractID, err)
		return models.MTradeResult{Message: err.Error()}, err
	}
	sold, err := bodyAs[*codec.Sell](frame)
	if err != nil {
		return models.MTradeResult{Message: err.Error()}, err
	}

	soldFor := decimal.NewFromFloat(sold.SoldFor.Float())
	profit := soldFor.Sub(decimal.NewFromFloat(pos.BuyPrice)).Round(2)
	if _, removed := g.store.RemovePosition(contractID); removed {
		g.store.RealizeProfit(profit)
		g.rec.Trade(models.MTradeRecord{
			Event: "close", ContractID: contractID, Symbol: pos.Symbol, Direction: pos.Direction,
			Stake: pos.Size, Price: soldFor.InexactFloat64(), Profit: profit.InexactFloat64(), Detail: "sold",
		})
	}
	g.publishPositions()
	g.rec.Success(subsystem, "closed contract %d on %s for %s, profit %s", contractID, pos.Symbol, soldFor.StringFixed(2), profit.StringFixed(2))

	return models.MTradeResult{
		Success:    true,
		Message:    fmt.Sprintf("contract %d closed", contractID),
		ContractID: contractID,
	}, nil
}
