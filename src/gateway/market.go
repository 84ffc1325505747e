package gateway

import (
	"context"
	"sort"

	"trading-relay/src/codec"
	"trading-relay/src/models"
)

const symbolsKey = "active_symbols:basic"

// Symbols returns the tradable catalogue, cached for SymbolsTTL.
func (g *Gateway) Symbols(ctx context.Context) ([]models.MSymbol, error) {
	if v, ok := g.symbols.Get(symbolsKey); ok {
		if list, ok := v.([]models.MSymbol); ok {
			return list, nil
		}
	}

	frame, err := g.link.Request(ctx, &codec.ActiveSymbolsRequest{ActiveSymbols: "brief", ProductType: "basic"})
	if err != nil {
		return nil, err
	}
	body, err := bodyAs[*codec.ActiveSymbols](frame)
	if err != nil {
		return nil, err
	}

	list := make([]models.MSymbol, 0, len(body.Symbols))
	for _, s := range body.Symbols {
		list = append(list, models.MSymbol{
			Symbol:      s.Symbol,
			DisplayName: s.DisplayName,
			Market:      s.Market,
			Submarket:   s.Submarket,
			IsOpen:      bool(s.ExchangeIsOpen),
			Suspended:   bool(s.IsTradingSuspended),
			Pip:         s.Pip.Float(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })

	g.symbols.SetWithTTL(symbolsKey, list, int64(len(list))+1, g.opts.SymbolsTTL)
	g.symbols.Wait()
	return list, nil
}

// Positions returns the open positions ordered by open time.
func (g *Gateway) Positions() []models.MPosition {
	return g.store.ListPositions()
}
