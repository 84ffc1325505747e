package codec

import (
	"encoding/json"
	"strconv"

	"trading-relay/src/helpers"
)

// Message is the decoded body of an inbound frame.
type Message interface {
	Kind() string
}

// APIError is the error object upstream attaches to a failed reply.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Err() error {
	return helpers.NewUpstreamError(e.Code, e.Message)
}

// SubscriptionInfo identifies a streaming subscription; used to forget it.
type SubscriptionInfo struct {
	ID string `json:"id"`
}

// Frame is one decoded inbound frame.
type Frame struct {
	MsgType      string
	ReqID        uint64
	Error        *APIError
	Subscription *SubscriptionInfo
	Body         Message
	Raw          json.RawMessage
}

// IsReply reports whether the frame answers a correlated request.
func (f Frame) IsReply() bool {
	return f.ReqID != 0
}

// -----------------------------------------------------------------------------
// Bodies
// -----------------------------------------------------------------------------

type AccountListEntry struct {
	LoginID    string `json:"loginid"`
	Currency   string `json:"currency"`
	IsVirtual  Flag   `json:"is_virtual"`
	IsDisabled Flag   `json:"is_disabled"`
	Type       string `json:"account_type"`
}

type Authorize struct {
	LoginID     string             `json:"loginid"`
	Balance     Number             `json:"balance"`
	Currency    string             `json:"currency"`
	Email       string             `json:"email"`
	Fullname    string             `json:"fullname"`
	IsVirtual   Flag               `json:"is_virtual"`
	AccountList []AccountListEntry `json:"account_list"`
}

func (*Authorize) Kind() string { return "authorize" }

type Balance struct {
	LoginID  string `json:"loginid"`
	Balance  Number `json:"balance"`
	Currency string `json:"currency"`
	ID       string `json:"id"`
}

func (*Balance) Kind() string { return "balance" }

type Tick struct {
	Symbol  string `json:"symbol"`
	Quote   Number `json:"quote"`
	Bid     Number `json:"bid"`
	Ask     Number `json:"ask"`
	Epoch   int64  `json:"epoch"`
	ID      string `json:"id"`
	PipSize Number `json:"pip_size"`
}

func (*Tick) Kind() string { return "tick" }

// Prices returns bid and ask, falling back to the quote when the venue
// only streams a single price.
func (t *Tick) Prices() (bid, ask float64) {
	bid, ask = t.Bid.Float(), t.Ask.Float()
	if bid == 0 {
		bid = t.Quote.Float()
	}
	if ask == 0 {
		ask = t.Quote.Float()
	}
	return bid, ask
}

type Proposal struct {
	ID        string `json:"id"`
	AskPrice  Number `json:"ask_price"`
	Payout    Number `json:"payout"`
	Spot      Number `json:"spot"`
	LongCode  string `json:"longcode"`
	DateStart int64  `json:"date_start"`
}

func (*Proposal) Kind() string { return "proposal" }

type Buy struct {
	ContractID    int64  `json:"contract_id"`
	BuyPrice      Number `json:"buy_price"`
	BalanceAfter  Number `json:"balance_after"`
	TransactionID int64  `json:"transaction_id"`
	LongCode      string `json:"longcode"`
	ShortCode     string `json:"shortcode"`
	StartTime     int64  `json:"start_time"`
}

func (*Buy) Kind() string { return "buy" }

type Sell struct {
	ContractID    int64  `json:"contract_id"`
	SoldFor       Number `json:"sold_for"`
	BalanceAfter  Number `json:"balance_after"`
	TransactionID int64  `json:"transaction_id"`
}

func (*Sell) Kind() string { return "sell" }

type Pong struct {
	Ping string `json:"ping"`
}

func (*Pong) Kind() string { return "ping" }

type ActiveSymbol struct {
	Symbol             string `json:"symbol"`
	DisplayName        string `json:"display_name"`
	Market             string `json:"market"`
	MarketDisplayName  string `json:"market_display_name"`
	Submarket          string `json:"submarket"`
	ExchangeIsOpen     Flag   `json:"exchange_is_open"`
	IsTradingSuspended Flag   `json:"is_trading_suspended"`
	Pip                Number `json:"pip"`
}

type ActiveSymbols struct {
	Symbols []ActiveSymbol
}

func (*ActiveSymbols) Kind() string { return "active_symbols" }

type ContractOffer struct {
	ContractType       string `json:"contract_type"`
	ContractCategory   string `json:"contract_category"`
	MinContractMeasure Number `json:"min_contract_measure"`
	MaxContractMeasure Number `json:"max_contract_measure"`
	MinStake           Number `json:"min_stake"`
	Multiplier         []int  `json:"multiplier_range"`
}

type ContractsFor struct {
	Available []ContractOffer `json:"available"`
}

func (*ContractsFor) Kind() string { return "contracts_for" }

type OpenContract struct {
	ContractID   int64  `json:"contract_id"`
	Underlying   string `json:"underlying"`
	ContractType string `json:"contract_type"`
	BuyPrice     Number `json:"buy_price"`
	BidPrice     Number `json:"bid_price"`
	EntrySpot    Number `json:"entry_spot"`
	CurrentSpot  Number `json:"current_spot"`
	Profit       Number `json:"profit"`
	IsSold       Flag   `json:"is_sold"`
	Status       string `json:"status"`
	DateStart    int64  `json:"date_start"`
}

func (*OpenContract) Kind() string { return "proposal_open_contract" }

type PortfolioContract struct {
	ContractID   int64  `json:"contract_id"`
	Symbol       string `json:"symbol"`
	ContractType string `json:"contract_type"`
	BuyPrice     Number `json:"buy_price"`
	Payout       Number `json:"payout"`
	PurchaseTime int64  `json:"purchase_time"`
}

type Portfolio struct {
	Contracts []PortfolioContract `json:"contracts"`
}

func (*Portfolio) Kind() string { return "portfolio" }

// ErrorMessage is the body of any reply carrying an error object.
type ErrorMessage struct {
	APIError
}

func (*ErrorMessage) Kind() string { return "error" }

// Generic carries frames the relay forwards or ignores without interpreting.
type Generic struct {
	MsgType string
	Raw     json.RawMessage
}

func (g *Generic) Kind() string { return g.MsgType }

// -----------------------------------------------------------------------------
// Decode
// -----------------------------------------------------------------------------

type envelope struct {
	MsgType      string                     `json:"msg_type"`
	ReqID        json.RawMessage            `json:"req_id"`
	EchoReq      map[string]json.RawMessage `json:"echo_req"`
	Error        *APIError                  `json:"error"`
	Subscription *SubscriptionInfo          `json:"subscription"`
}

// Decode parses one inbound frame. A frame that is not a JSON object or has
// no msg_type yields a *helpers.DecodeError.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, helpers.NewDecodeError("malformed frame", err)
	}
	if env.MsgType == "" {
		if env.Error == nil {
			return Frame{}, helpers.NewDecodeError("frame without msg_type", nil)
		}
		env.MsgType = "error"
	}

	frame := Frame{
		MsgType:      env.MsgType,
		ReqID:        parseReqID(env.ReqID),
		Error:        env.Error,
		Subscription: env.Subscription,
		Raw:          json.RawMessage(data),
	}
	if frame.ReqID == 0 && env.EchoReq != nil {
		frame.ReqID = parseReqID(env.EchoReq["req_id"])
	}

	if env.Error != nil {
		frame.Body = &ErrorMessage{APIError: *env.Error}
		return frame, nil
	}

	body, err := decodeBody(env.MsgType, data)
	if err != nil {
		return Frame{}, helpers.NewDecodeError("invalid "+env.MsgType+" body", err)
	}
	frame.Body = body
	return frame, nil
}

// -----------------------------------------------------------------------------

func decodeBody(msgType string, data []byte) (Message, error) {
	var target Message
	var field string

	switch msgType {
	case "authorize":
		target, field = &Authorize{}, "authorize"
	case "balance":
		target, field = &Balance{}, "balance"
	case "tick":
		target, field = &Tick{}, "tick"
	case "proposal":
		target, field = &Proposal{}, "proposal"
	case "buy":
		target, field = &Buy{}, "buy"
	case "sell":
		target, field = &Sell{}, "sell"
	case "contracts_for":
		target, field = &ContractsFor{}, "contracts_for"
	case "proposal_open_contract":
		target, field = &OpenContract{}, "proposal_open_contract"
	case "portfolio":
		target, field = &Portfolio{}, "portfolio"
	case "ping":
		var p Pong
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "active_symbols":
		var wrapper struct {
			ActiveSymbols []ActiveSymbol `json:"active_symbols"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, err
		}
		return &ActiveSymbols{Symbols: wrapper.ActiveSymbols}, nil
	default:
		return &Generic{MsgType: msgType, Raw: json.RawMessage(data)}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		// Streaming acks (e.g. proposal_open_contract with no open contracts)
		// carry an empty body.
		return target, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

// -----------------------------------------------------------------------------

func parseReqID(raw json.RawMessage) uint64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return v
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
