package models

import "time"

// MTick is one normalized price update for a symbol.
type MTick struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Spread    float64   `json:"spread"`
	Epoch     int64     `json:"epoch"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTick derives spread and timestamp from the raw quote fields.
func NewTick(symbol string, bid, ask float64, epoch int64) MTick {
	return MTick{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Spread:    ask - bid,
		Epoch:     epoch,
		Timestamp: time.Unix(epoch, 0).UTC(),
	}
}
