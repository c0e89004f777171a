package binance

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/iskelet/bxgate/internal/stream"
)

// listenKeyKeepAliveEvery is half the server's listen-key expiry.
const listenKeyKeepAliveEvery = 30 * time.Minute

// SubscribeTicker delivers rolling ticker updates for symbol.
func (c *Client) SubscribeTicker(symbol string, observer stream.Observer) (stream.Handle, error) {
	return c.spot.Subscribe(streamName(symbol, "ticker"), observer)
}

// SubscribeKline delivers candlestick updates for symbol at interval.
func (c *Client) SubscribeKline(symbol, interval string, observer stream.Observer) (stream.Handle, error) {
	return c.spot.Subscribe(streamName(symbol, "kline_"+interval), observer)
}

// SubscribeDepth delivers order book updates for symbol. levels is the
// snapshot depth (5, 10 or 20).
func (c *Client) SubscribeDepth(symbol string, levels int, observer stream.Observer) (stream.Handle, error) {
	name := streamName(symbol, "depth")
	if levels > 0 {
		name = streamName(symbol, "depth"+strconv.Itoa(levels)+"@100ms")
	}
	return c.spot.Subscribe(name, observer)
}

// SubscribeAggTrade delivers aggregated trades for symbol.
func (c *Client) SubscribeAggTrade(symbol string, observer stream.Observer) (stream.Handle, error) {
	return c.spot.Subscribe(streamName(symbol, "aggTrade"), observer)
}

// SubscribeFuturesTicker delivers futures ticker updates for symbol on
// the alternate-host stream.
func (c *Client) SubscribeFuturesTicker(symbol string, observer stream.Observer) (stream.Handle, error) {
	return c.futures.Subscribe(streamName(symbol, "ticker"), observer)
}

// Unsubscribe removes one observer registration from either manager.
func (c *Client) Unsubscribe(h stream.Handle) {
	c.spot.Unsubscribe(h)
	c.futures.Unsubscribe(h)
}

// SubscribeUserData opens a user-data stream: it fetches a listen key
// over REST, subscribes to it as a channel, and keeps the key alive in
// the background until the client closes.
func (c *Client) SubscribeUserData(ctx context.Context, observer stream.Observer) (stream.Handle, error) {
	listenKey, err := c.NewListenKey(ctx)
	if err != nil {
		return stream.Handle{}, err
	}

	h, err := c.spot.Subscribe(listenKey, observer)
	if err != nil {
		return stream.Handle{}, err
	}

	go c.keepAliveLoop(listenKey)
	return h, nil
}

// keepAliveLoop refreshes the listen key until the client closes.
// Refresh failures are logged and retried at the next tick; the server
// tolerates missed refreshes within the expiry window.
func (c *Client) keepAliveLoop(listenKey string) {
	ticker := c.clock.Ticker(listenKeyKeepAliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := c.KeepAliveListenKey(ctx, listenKey); err != nil {
				c.logger.Warn("listen key keepalive failed", "error", err)
			}
			cancel()
		}
	}
}

func streamName(symbol, suffix string) string {
	return strings.ToLower(symbol) + "@" + suffix
}
