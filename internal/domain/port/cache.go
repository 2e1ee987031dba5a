package port

import (
	"context"

	"tailwatch/internal/domain/model"
)

// CachePort keeps the latest universe snapshot and candle windows for other
// readers of the same cache.
type CachePort interface {
	SetUniverse(ctx context.Context, snapshot model.UniverseSnapshot) error
	SetCandles(ctx context.Context, window model.CandleWindow) error
	GetCandles(ctx context.Context, symbol, interval string) (*model.CandleWindow, error)
	Ping(ctx context.Context) error
	Close() error
}
