package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iskelet/bxgate/internal/ratelimit"
	"github.com/iskelet/bxgate/internal/transport"
)

// Ping checks REST connectivity. A healthy exchange returns an empty
// object.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/ping",
		Priority: ratelimit.PriorityLow,
	})
	return err
}

// ServerTime returns the exchange clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/time",
		Priority: ratelimit.PriorityLow,
	})
	if err != nil {
		return time.Time{}, err
	}

	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return time.Time{}, fmt.Errorf("parse server time: %w", err)
	}
	return time.UnixMilli(payload.ServerTime), nil
}

// ExchangeInfo returns the raw trading rules and symbol list. The
// payload is large and changes rarely, so it rides the cache with a
// long TTL.
func (c *Client) ExchangeInfo(ctx context.Context) (json.RawMessage, error) {
	return c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/exchangeInfo",
		Priority: ratelimit.PriorityLow,
		CacheTTL: 10 * time.Minute,
	})
}

// TickerPrice returns the last price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (TickerPrice, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/ticker/price",
		Params:   params,
		Priority: ratelimit.PriorityNormal,
		CacheTTL: c.cacheTTL,
	})
	if err != nil {
		return TickerPrice{}, err
	}

	var payload tickerPricePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return TickerPrice{}, fmt.Errorf("parse ticker: %w", err)
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return TickerPrice{}, fmt.Errorf("parse ticker price %q: %w", payload.Price, err)
	}
	return TickerPrice{Symbol: payload.Symbol, Price: price}, nil
}

// Depth returns an order book snapshot for symbol.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (Depth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/depth",
		Params:   params,
		Priority: ratelimit.PriorityNormal,
		CacheTTL: c.cacheTTL,
	})
	if err != nil {
		return Depth{}, err
	}

	var payload depthPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Depth{}, fmt.Errorf("parse depth: %w", err)
	}
	bids, err := parseLevels(payload.Bids)
	if err != nil {
		return Depth{}, err
	}
	asks, err := parseLevels(payload.Asks)
	if err != nil {
		return Depth{}, err
	}
	return Depth{LastUpdateID: payload.LastUpdateID, Bids: bids, Asks: asks}, nil
}

// Klines returns up to limit candlesticks for symbol at interval.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/klines",
		Params:   params,
		Priority: ratelimit.PriorityNormal,
		CacheTTL: c.cacheTTL,
	})
	if err != nil {
		return nil, err
	}

	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	klines := make([]Kline, 0, len(rows))
	for i, row := range rows {
		k, err := row.parse()
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// AggTrades returns the raw aggregated trades for symbol.
func (c *Client) AggTrades(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	return c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/aggTrades",
		Params:   params,
		Priority: ratelimit.PriorityNormal,
	})
}
