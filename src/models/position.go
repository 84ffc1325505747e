package models

import "time"

// MPosition is an open contract held on the active account.
type MPosition struct {
	ContractID int64     `json:"contract_id"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"` // contract type, e.g. CALL, PUT, MULTUP
	Size       float64   `json:"size"`      // stake
	BuyPrice   float64   `json:"buy_price"`
	EntryPrice float64   `json:"entry_price"`
	LastPrice  float64   `json:"last_price"`
	ProfitLoss float64   `json:"profit_loss"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	OpenTime   time.Time `json:"open_time"`
}
