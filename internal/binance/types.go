package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TickerPrice is the last price for one symbol.
type TickerPrice struct {
	Symbol string
	Price  decimal.Decimal
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth is an order book snapshot.
type Depth struct {
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// Kline is one candlestick.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderParams describes a new order. ClientOrderID is the caller's
// idempotency key; the exchange rejects a duplicate ID rather than
// filling twice.
type OrderParams struct {
	Symbol        string
	Side          OrderSide
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   string
	ClientOrderID string
}

type tickerPricePayload struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type depthPayload struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func parseLevels(raw [][2]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse level price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse level quantity %q: %w", pair[1], err)
		}
		levels = append(levels, PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// klineRow is the exchange's positional kline encoding:
// [openTime, open, high, low, close, volume, closeTime, ...].
type klineRow []json.RawMessage

func (r klineRow) parse() (Kline, error) {
	if len(r) < 7 {
		return Kline{}, fmt.Errorf("kline row has %d fields, want >= 7", len(r))
	}

	var openTime, closeTime int64
	if err := json.Unmarshal(r[0], &openTime); err != nil {
		return Kline{}, fmt.Errorf("parse kline open time: %w", err)
	}
	if err := json.Unmarshal(r[6], &closeTime); err != nil {
		return Kline{}, fmt.Errorf("parse kline close time: %w", err)
	}

	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(r[i+1], &s); err != nil {
			return Kline{}, fmt.Errorf("parse kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Kline{}, fmt.Errorf("parse kline field %d value %q: %w", i+1, s, err)
		}
		fields[i] = d
	}

	return Kline{
		OpenTime:  time.UnixMilli(openTime),
		CloseTime: time.UnixMilli(closeTime),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}
