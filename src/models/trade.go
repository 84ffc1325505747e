package models

import "time"

// MTradeRequest is the validated input of a manual trade.
type MTradeRequest struct {
	Symbol       string   `json:"symbol"`
	ContractType string   `json:"contract_type"`
	Amount       float64  `json:"amount"`
	Duration     int      `json:"duration"`
	DurationUnit string   `json:"duration_unit"`
	Currency     string   `json:"currency"`
	Multiplier   int      `json:"multiplier,omitempty"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
}

// -----------------------------------------------------------------------------

// MTradeResult is the acknowledgement returned to the caller.
type MTradeResult struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	ContractID int64   `json:"contract_id,omitempty"`
	BuyPrice   float64 `json:"buy_price,omitempty"`
}

// -----------------------------------------------------------------------------

// MTradeRecord is one execution written to the audit trail.
type MTradeRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Event      string    `json:"event"` // open, close, failed
	ContractID int64     `json:"contract_id"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Stake      float64   `json:"stake"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Detail     string    `json:"detail"`
}
