package codec

import (
	"encoding/json"

	"trading-relay/src/helpers"
)

// Request is an outbound upstream frame. Requests that expect a reply are
// stamped with a correlation id before encoding.
type Request interface {
	SetReqID(id uint64)
	GetReqID() uint64
	Kind() string
}

type reqHeader struct {
	ReqID uint64 `json:"req_id,omitempty"`
}

func (h *reqHeader) SetReqID(id uint64) { h.ReqID = id }
func (h *reqHeader) GetReqID() uint64   { return h.ReqID }

// -----------------------------------------------------------------------------

type AuthorizeRequest struct {
	Authorize string `json:"authorize"`
	reqHeader
}

func (*AuthorizeRequest) Kind() string { return "authorize" }

// GoString keeps the token out of %#v output.
func (r *AuthorizeRequest) GoString() string { return "codec.AuthorizeRequest{Authorize:<redacted>}" }

type PingRequest struct {
	Ping int `json:"ping"`
	reqHeader
}

func (*PingRequest) Kind() string { return "ping" }

type BalanceRequest struct {
	Balance   int `json:"balance"`
	Subscribe int `json:"subscribe,omitempty"`
	reqHeader
}

func (*BalanceRequest) Kind() string { return "balance" }

type TicksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
	reqHeader
}

func (*TicksRequest) Kind() string { return "ticks" }

type ForgetRequest struct {
	Forget string `json:"forget"`
	reqHeader
}

func (*ForgetRequest) Kind() string { return "forget" }

type ForgetAllRequest struct {
	ForgetAll []string `json:"forget_all"`
	reqHeader
}

func (*ForgetAllRequest) Kind() string { return "forget_all" }

// -----------------------------------------------------------------------------

type LimitOrder struct {
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

type ProposalRequest struct {
	Proposal     int         `json:"proposal"`
	Amount       float64     `json:"amount"`
	Basis        string      `json:"basis"`
	ContractType string      `json:"contract_type"`
	Currency     string      `json:"currency"`
	Duration     int         `json:"duration,omitempty"`
	DurationUnit string      `json:"duration_unit,omitempty"`
	Multiplier   int         `json:"multiplier,omitempty"`
	LimitOrder   *LimitOrder `json:"limit_order,omitempty"`
	Symbol       string      `json:"symbol"`
	reqHeader
}

func (*ProposalRequest) Kind() string { return "proposal" }

// BuyRequest accepts a proposal id at up to Price.
type BuyRequest struct {
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
	reqHeader
}

func (*BuyRequest) Kind() string { return "buy" }

// SellRequest closes a contract at market (Price 0).
type SellRequest struct {
	Sell  int64   `json:"sell"`
	Price float64 `json:"price"`
	reqHeader
}

func (*SellRequest) Kind() string { return "sell" }

type ContractsForRequest struct {
	ContractsFor string `json:"contracts_for"`
	Currency     string `json:"currency,omitempty"`
	ProductType  string `json:"product_type,omitempty"`
	reqHeader
}

func (*ContractsForRequest) Kind() string { return "contracts_for" }

type ActiveSymbolsRequest struct {
	ActiveSymbols string `json:"active_symbols"`
	ProductType   string `json:"product_type,omitempty"`
	reqHeader
}

func (*ActiveSymbolsRequest) Kind() string { return "active_symbols" }

type PortfolioRequest struct {
	Portfolio int `json:"portfolio"`
	reqHeader
}

func (*PortfolioRequest) Kind() string { return "portfolio" }

type ProposalOpenContractRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id,omitempty"`
	Subscribe            int   `json:"subscribe,omitempty"`
	reqHeader
}

func (*ProposalOpenContractRequest) Kind() string { return "proposal_open_contract" }

// -----------------------------------------------------------------------------
// Constructors for the frames the link sends on its own
// -----------------------------------------------------------------------------

func NewAuthorize(token string) *AuthorizeRequest { return &AuthorizeRequest{Authorize: token} }
func NewPing() *PingRequest                       { return &PingRequest{Ping: 1} }
func NewBalanceSubscribe() *BalanceRequest        { return &BalanceRequest{Balance: 1, Subscribe: 1} }
func NewTicksSubscribe(symbol string) *TicksRequest {
	return &TicksRequest{Ticks: symbol, Subscribe: 1}
}
func NewForget(subscriptionID string) *ForgetRequest { return &ForgetRequest{Forget: subscriptionID} }
func NewPortfolio() *PortfolioRequest                { return &PortfolioRequest{Portfolio: 1} }
func NewOpenContractSubscribe() *ProposalOpenContractRequest {
	return &ProposalOpenContractRequest{ProposalOpenContract: 1, Subscribe: 1}
}

// -----------------------------------------------------------------------------

// Encode serializes an outbound request.
func Encode(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, helpers.NewDecodeError("encode "+req.Kind(), err)
	}
	return data, nil
}
