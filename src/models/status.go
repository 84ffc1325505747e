package models

import "time"

// MStatus is the snapshot returned by the status endpoint.
type MStatus struct {
	IsConnected    bool       `json:"isConnected"`
	IsAuthorized   bool       `json:"isAuthorized"`
	IsRunning      bool       `json:"isRunning"`
	LinkState      string     `json:"linkState"`
	Strategy       string     `json:"strategy"`
	Account        string     `json:"account"`
	Symbol         string     `json:"symbol"`
	Uptime         int64      `json:"uptime"`
	TradesExecuted int        `json:"tradesExecuted"`
	ProfitToday    float64    `json:"profitToday"`
	LastTrade      *time.Time `json:"lastTrade"`
}

// -----------------------------------------------------------------------------

// MSession holds the run flag and today's trading counters.
type MSession struct {
	Running     bool
	StartedAt   time.Time
	Day         string // YYYY-MM-DD in UTC
	Trades      int
	ProfitToday float64
	LastTrade   *time.Time
}
