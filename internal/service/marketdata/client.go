package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
	xhttp "TradeSim/pkg/http"
)

// Client implements MarketData against the quote proxy. The proxy returns a
// symbol -> tick mapping that may be partial on upstream failure; callers
// keep last-known prices for missing symbols.
type Client struct {
	baseURL string
	http    *xhttp.Client
	mock    bool
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// WithCasablancaMock enables locally generated Casablanca (.MA) quotes when
// the proxy has no feed for them.
func WithCasablancaMock(enabled bool) Option {
	return func(c *Client) { c.mock = enabled }
}

// New creates a market-data client for the given proxy base URL.
func New(baseURL string, opts ...Option) drepo.MarketData {
	c := &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(15 * time.Second)),
		mock:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteRequest struct {
	Symbols []string `json:"symbols,omitempty"`
	Market  string   `json:"market"`
}

type quoteResponse struct {
	Success   bool                        `json:"success"`
	Data      map[string]models.PriceTick `json:"data"`
	Error     string                      `json:"error,omitempty"`
	Timestamp string                      `json:"timestamp"`
}

// Fetch requests the latest ticks for a market scope and optional symbol
// list. A partial mapping is returned as-is; only a transport or envelope
// failure is an error.
func (c *Client) Fetch(ctx context.Context, market string, symbols []string) (map[string]models.PriceTick, error) {
	if market == "" {
		market = "all"
	}

	var res quoteResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/api/market-data",
		Body:   &quoteRequest{Symbols: symbols, Market: market},
	}, &res)
	if err != nil {
		if c.mock && (market == "morocco" || market == "all") {
			// proxy down: at least the mocked venue stays alive
			return c.casablancaQuotes(), nil
		}
		return nil, fmt.Errorf("market data fetch: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("market data fetch: %s", res.Error)
	}

	out := res.Data
	if out == nil {
		out = make(map[string]models.PriceTick)
	}
	if c.mock && (market == "morocco" || market == "all") {
		for sym, tk := range c.casablancaQuotes() {
			if _, ok := out[sym]; !ok {
				out[sym] = tk
			}
		}
	}
	return out, nil
}

// casablancaStocks mirrors the proxy's mocked venue: approximate base prices
// jittered per fetch.
var casablancaStocks = []struct {
	symbol string
	name   string
	base   float64
	jitter float64
}{
	{"IAM.MA", "Maroc Telecom", 125.50, 1},
	{"ATW.MA", "Attijariwafa Bank", 485.00, 2.5},
	{"BCP.MA", "Banque Centrale Populaire", 278.00, 1.5},
	{"LHM.MA", "LafargeHolcim Maroc", 1850.00, 10},
}

func (c *Client) casablancaQuotes() map[string]models.PriceTick {
	now := time.Now()
	out := make(map[string]models.PriceTick, len(casablancaStocks))
	for _, s := range casablancaStocks {
		price := s.base + (rand.Float64()*2-1)*s.jitter
		changePct := rand.Float64()*2 - 1
		out[s.symbol] = models.PriceTick{
			Symbol:        s.symbol,
			Name:          s.name,
			Price:         round2(price),
			Change:        round2(price * changePct / 100),
			ChangePercent: round2(changePct),
			Currency:      "MAD",
			Market:        "Casablanca Stock Exchange",
			Timestamp:     now,
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
