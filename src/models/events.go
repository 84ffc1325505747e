package models

// Downstream push frame types.
const (
	EventTick          = "tick"
	EventLog           = "log"
	EventPositions     = "positions"
	EventBalance       = "balance"
	EventMarketStatus  = "market_status"
	EventSignalSkipped = "signal_skipped"
	EventNotification  = "notification"
	EventPing          = "ping"
	EventAccount       = "account"
)

// MEvent is one normalized frame fanned out to downstream clients.
type MEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// -----------------------------------------------------------------------------

// MBalanceUpdate is the payload of a balance frame.
type MBalanceUpdate struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
}

// MNotification is a title/body pair for desktop notifications.
type MNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// -----------------------------------------------------------------------------

// MClientCommand is a message sent by a downstream client on the push channel.
type MClientCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}

// RelayedEventTypes are the frame types accepted from analytics collaborators.
var RelayedEventTypes = map[string]bool{
	EventMarketStatus:  true,
	EventSignalSkipped: true,
	EventNotification:  true,
}
