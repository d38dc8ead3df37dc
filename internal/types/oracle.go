package types

// QuotePrice is the latest observation the oracle holds for a pair.
type QuotePrice struct {
	Price          string `json:"price"`
	BlockTimestamp string `json:"block_timestamp,omitempty"`
	BlockHeight    uint64 `json:"block_height,string"`
}

type GetPriceResponse struct {
	Price    *QuotePrice `json:"price,omitempty"`
	Nonce    uint64      `json:"nonce,string"`
	Decimals uint64      `json:"decimals,string"`
	ID       uint64      `json:"id,string"`
}

type Ticker struct {
	CurrencyPair     CurrencyPair `json:"currency_pair"`
	Decimals         uint64       `json:"decimals,string"`
	MinProviderCount uint64       `json:"min_provider_count,string"`
	Enabled          bool         `json:"enabled"`
}

type Market struct {
	Ticker *Ticker `json:"ticker,omitempty"`
}

type MarketMap struct {
	Markets map[string]Market `json:"markets"`
}
