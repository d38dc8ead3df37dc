package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/types"
)

const (
	pathGetPrice      = "/slinky/oracle/v1/get_price"
	pathGetAllTickers = "/slinky/oracle/v1/get_all_tickers"
	pathMarketMap     = "/slinky/marketmap/v1/marketmap"
	pathLatestBlock   = "/cosmos/base/tendermint/v1beta1/blocks/latest"
)

// HeightSource reports the height of the ledger the contract runs against.
type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	URL     string        `mapstructure:"url" json:"url,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
}

// SlinkyClient reads the x/oracle and x/marketmap modules over a node's REST
// gateway.
type SlinkyClient struct {
	baseURL string
	client  HTTPDoer
	logger  logrus.FieldLogger
}

func NewSlinkyClient(cfg Config, logger logrus.FieldLogger) (*SlinkyClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("oracle url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewSlinkyClientWithDoer(cfg.URL, &http.Client{Timeout: timeout}, logger), nil
}

func NewSlinkyClientWithDoer(baseURL string, client HTTPDoer, logger logrus.FieldLogger) *SlinkyClient {
	return &SlinkyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

func (c *SlinkyClient) GetPrice(ctx context.Context, pair types.CurrencyPair) (*types.GetPriceResponse, error) {
	query := url.Values{}
	query.Set("currency_pair", pair.String())
	var resp types.GetPriceResponse
	if err := c.get(ctx, pathGetPrice, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *SlinkyClient) GetAllCurrencyPairs(ctx context.Context) ([]types.CurrencyPair, error) {
	var resp struct {
		CurrencyPairs []types.CurrencyPair `json:"currency_pairs"`
	}
	if err := c.get(ctx, pathGetAllTickers, nil, &resp); err != nil {
		return nil, err
	}
	return resp.CurrencyPairs, nil
}

func (c *SlinkyClient) MarketMap(ctx context.Context) (*types.MarketMap, error) {
	var resp struct {
		MarketMap *types.MarketMap `json:"market_map"`
	}
	if err := c.get(ctx, pathMarketMap, nil, &resp); err != nil {
		return nil, err
	}
	if resp.MarketMap == nil {
		return &types.MarketMap{Markets: map[string]types.Market{}}, nil
	}
	return resp.MarketMap, nil
}

func (c *SlinkyClient) LatestHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		Block struct {
			Header struct {
				Height string `json:"height"`
			} `json:"header"`
		} `json:"block"`
	}
	if err := c.get(ctx, pathLatestBlock, nil, &resp); err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(resp.Block.Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q: %w", resp.Block.Header.Height, err)
	}
	return height, nil
}

func (c *SlinkyClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Error("failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
