package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

type Coin struct {
	Denom  string       `json:"denom" validate:"required"`
	Amount sdkmath.Uint `json:"amount"`
}

func NewCoin(denom string, amount sdkmath.Uint) Coin {
	return Coin{Denom: denom, Amount: amount}
}

// Env describes the ledger the contract executes against.
type Env struct {
	BlockHeight     uint64 `json:"block_height"`
	ContractAddress string `json:"contract_address"`
}

// MessageInfo identifies the caller and the funds attached to a request.
type MessageInfo struct {
	Sender string `json:"sender"`
	Funds  []Coin `json:"funds"`
}

type LimitOrderType string

const (
	LimitOrderGoodTilCancelled  LimitOrderType = "GOOD_TIL_CANCELLED"
	LimitOrderFillOrKill        LimitOrderType = "FILL_OR_KILL"
	LimitOrderImmediateOrCancel LimitOrderType = "IMMEDIATE_OR_CANCEL"
)

type PlaceLimitOrder struct {
	Creator          string          `json:"creator"`
	Receiver         string          `json:"receiver"`
	TokenIn          string          `json:"token_in"`
	TokenOut         string          `json:"token_out"`
	TickIndexInToOut int64           `json:"tick_index_in_to_out"`
	AmountIn         sdkmath.Uint    `json:"amount_in"`
	OrderType        LimitOrderType  `json:"order_type"`
	ExpirationTime   *time.Time      `json:"expiration_time,omitempty"`
	LimitSellPrice   decimal.Decimal `json:"limit_sell_price"`
}

type BankSend struct {
	ToAddress string `json:"to_address"`
	Amount    []Coin `json:"amount"`
}

type ReplyOn string

const (
	ReplyNever   ReplyOn = "never"
	ReplyAlways  ReplyOn = "always"
	ReplySuccess ReplyOn = "success"
	ReplyError   ReplyOn = "error"
)

// SubMsg is an outbound instruction executed by the host after the
// invocation commits. ID carries the schedule id for reply correlation.
type SubMsg struct {
	ID       uint64           `json:"id"`
	ReplyOn  ReplyOn          `json:"reply_on"`
	Order    *PlaceLimitOrder `json:"place_limit_order,omitempty"`
	BankSend *BankSend        `json:"bank_send,omitempty"`
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Response struct {
	Messages   []SubMsg    `json:"messages"`
	Attributes []Attribute `json:"attributes"`
}

func NewResponse() *Response {
	return &Response{}
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddMessages(msgs ...SubMsg) *Response {
	r.Messages = append(r.Messages, msgs...)
	return r
}

// Attribute returns the first attribute value stored under key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// PlaceLimitOrderResponse is the venue's result payload for an executed order.
type PlaceLimitOrderResponse struct {
	TrancheKey   string `json:"tranche_key"`
	CoinIn       Coin   `json:"coin_in"`
	TakerCoinOut Coin   `json:"taker_coin_out"`
	TakerCoinIn  Coin   `json:"taker_coin_in"`
}

// CompletionNotice is delivered back to the contract once the host has
// executed a dispatched order. Error is set when the venue rejected it.
type CompletionNotice struct {
	ID    uint64 `json:"id"`
	Data  []byte `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}
