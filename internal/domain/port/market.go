package port

import (
	"context"
	"errors"

	"tailwatch/internal/domain/model"
)

// ErrAcquisition marks a network or parse failure at the market data boundary.
var ErrAcquisition = errors.New("market data acquisition failed")

// MarketDataPort is the read side of an exchange: instrument universe and candles.
type MarketDataPort interface {
	Name() string
	ListInstruments(ctx context.Context) ([]model.Instrument, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}
