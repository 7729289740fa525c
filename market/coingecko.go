package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// defaultCoinIDs maps common pair symbols to CoinGecko coin IDs.
// Unmapped symbols fall back to the lowercased base of the pair.
var defaultCoinIDs = map[string]string{
	"BTC/USD": "bitcoin",
	"ETH/USD": "ethereum",
	"BNB/USD": "binancecoin",
	"ADA/USD": "cardano",
	"SOL/USD": "solana",
}

// CoinGecko fetches spot prices from the CoinGecko simple-price API.
type CoinGecko struct {
	baseURL string
	coinIDs map[string]string
	client  *http.Client
	log     zerolog.Logger
}

// CoinGeckoOptions overrides defaults; zero values keep them.
type CoinGeckoOptions struct {
	BaseURL string
	CoinIDs map[string]string // extra symbol -> coin ID mappings
	Timeout time.Duration
	Log     zerolog.Logger
}

func NewCoinGecko(opts CoinGeckoOptions) *CoinGecko {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	ids := make(map[string]string, len(defaultCoinIDs)+len(opts.CoinIDs))
	for k, v := range defaultCoinIDs {
		ids[k] = v
	}
	for k, v := range opts.CoinIDs {
		ids[k] = v
	}

	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		coinIDs: ids,
		client:  &http.Client{Timeout: timeout},
		log:     opts.Log.With().Str("component", "coingecko").Logger(),
	}
}

// Prices resolves USD prices for the given symbols in one request.
// Symbols the API does not return are left out of the result.
func (c *CoinGecko) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	coinToSymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		coin := c.coinID(sym)
		coinToSymbol[coin] = sym
		ids = append(ids, coin)
	}

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}

	out := make(map[string]float64, len(symbols))
	for coin, quotes := range body {
		sym, ok := coinToSymbol[coin]
		if !ok {
			continue
		}
		if usd, ok := quotes["usd"]; ok {
			out[sym] = usd
		}
	}

	for _, sym := range symbols {
		if _, ok := out[sym]; !ok {
			c.log.Debug().Str("symbol", sym).Msg("no price returned")
		}
	}
	return out, nil
}

func (c *CoinGecko) coinID(symbol string) string {
	if id, ok := c.coinIDs[symbol]; ok {
		return id
	}
	base, _, _ := strings.Cut(symbol, "/")
	return strings.ToLower(base)
}
