package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
)

// CandleUseCase serves candle windows for arbitrary symbols: the cache is
// consulted first, then the active market data provider.
type CandleUseCase struct {
	cache    port.CachePort
	provider func() port.MarketDataPort
	limit    int
	logger   *slog.Logger
}

// NewCandleUseCase builds the use case. cache may be nil.
func NewCandleUseCase(cache port.CachePort, provider func() port.MarketDataPort, limit int, logger *slog.Logger) *CandleUseCase {
	if limit <= 0 {
		limit = 100
	}
	return &CandleUseCase{
		cache:    cache,
		provider: provider,
		limit:    limit,
		logger:   logger,
	}
}

// GetCandles reports whether the window came from the cache.
func (uc *CandleUseCase) GetCandles(ctx context.Context, symbol, interval string) (*model.CandleWindow, bool, error) {
	if uc.cache != nil {
		window, err := uc.cache.GetCandles(ctx, symbol, interval)
		if err != nil {
			uc.logger.Warn("candle cache lookup failed, falling back to provider", "symbol", symbol, "error", err)
		} else if window != nil {
			return window, true, nil
		}
	}

	provider := uc.provider()
	candles, err := provider.GetCandles(ctx, symbol, interval, uc.limit)
	if err != nil {
		return nil, false, fmt.Errorf("candles %s/%s from %s: %w", symbol, interval, provider.Name(), err)
	}

	window := &model.CandleWindow{Symbol: symbol, Interval: interval, Candles: candles}
	if uc.cache != nil && len(candles) > 0 {
		if err := uc.cache.SetCandles(ctx, *window); err != nil {
			uc.logger.Warn("failed to cache candle window", "symbol", symbol, "error", err)
		}
	}
	return window, false, nil
}
