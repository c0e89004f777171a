package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/iskelet/bxgate/internal/ratelimit"
	"github.com/iskelet/bxgate/internal/transport"
)

// Account returns the raw signed account snapshot: balances,
// permissions, commission rates.
func (c *Client) Account(ctx context.Context) (json.RawMessage, error) {
	return c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/account",
		Signed:   true,
		Priority: ratelimit.PriorityHigh,
	})
}

// MyTrades returns the raw signed trade history for symbol.
func (c *Client) MyTrades(ctx context.Context, symbol string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	return c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/api/v3/myTrades",
		Params:   params,
		Signed:   true,
		Priority: ratelimit.PriorityNormal,
	})
}

// NewOrder places an order. Orders run at HIGH priority and never
// retry past the first network attempt: without the server's verdict a
// repeat could double-fill, and the ClientOrderID idempotency key is
// the caller's only protection.
func (c *Client) NewOrder(ctx context.Context, order OrderParams) (json.RawMessage, error) {
	if order.Symbol == "" || order.Side == "" || order.Type == "" {
		return nil, errors.New("order symbol, side and type are required")
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", order.Type)
	if !order.Quantity.IsZero() {
		params.Set("quantity", order.Quantity.String())
	}
	if !order.Price.IsZero() {
		params.Set("price", order.Price.String())
	}
	if order.TimeInForce != "" {
		params.Set("timeInForce", order.TimeInForce)
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}

	return c.rest.Execute(ctx, transport.Request{
		Method:     http.MethodPost,
		Path:       "/api/v3/order",
		Params:     params,
		Signed:     true,
		Priority:   ratelimit.PriorityHigh,
		MaxRetries: transport.NoRetries,
	})
}

// CancelOrder cancels an open order by the caller's client order ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	return c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodDelete,
		Path:     "/api/v3/order",
		Params:   params,
		Signed:   true,
		Priority: ratelimit.PriorityHigh,
	})
}

// NewListenKey opens a user-data stream and returns its listen key.
// The endpoint wants the API-key header but no signature.
func (c *Client) NewListenKey(ctx context.Context) (string, error) {
	body, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     "/api/v3/userDataStream",
		Priority: ratelimit.PriorityHigh,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse listen key: %w", err)
	}
	if payload.ListenKey == "" {
		return "", errors.New("server returned an empty listen key")
	}
	return payload.ListenKey, nil
}

// KeepAliveListenKey extends a listen key's validity.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)

	_, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodPut,
		Path:     "/api/v3/userDataStream",
		Params:   params,
		Priority: ratelimit.PriorityHigh,
	})
	return err
}

// CloseListenKey closes a user-data stream.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)

	_, err := c.rest.Execute(ctx, transport.Request{
		Method:   http.MethodDelete,
		Path:     "/api/v3/userDataStream",
		Params:   params,
		Priority: ratelimit.PriorityNormal,
	})
	return err
}
