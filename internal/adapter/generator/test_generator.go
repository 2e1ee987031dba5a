package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tailwatch/internal/domain/model"
)

var quoteAssets = []string{"USDT", "BTC", "ETH", "BUSD"}

var intervalSeconds = map[string]int64{
	"1m": 60, "3m": 180, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "2h": 7200, "4h": 14400, "6h": 21600, "8h": 28800, "12h": 43200,
	"1d": 86400, "3d": 259200, "1w": 604800, "1M": 2592000,
}

// TestGenerator produces a synthetic universe and random-walk candles so the
// service can run without exchange access.
type TestGenerator struct {
	name  string
	pairs []string
	log   *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

func NewTestGenerator(name string, pairs []string, seed int64, log *slog.Logger) *TestGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestGenerator{
		name:  name,
		pairs: pairs,
		log:   log,
		rnd:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
	}
}

func (t *TestGenerator) Name() string { return t.name }

func (t *TestGenerator) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Instrument, 0, len(t.pairs))
	for _, pair := range t.pairs {
		base, quote := splitPair(pair)
		out = append(out, model.Instrument{
			Symbol:     pair,
			BaseAsset:  base,
			QuoteAsset: quote,
			Price:      round(t.rnd.Float64()*100+1, 4),
			Volume:     round(t.rnd.Float64()*10000, 2),
		})
	}
	return out, nil
}

// GetCandles returns limit consecutive candles ending at the current
// interval boundary, oldest first.
func (t *TestGenerator) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, ok := intervalSeconds[interval]
	if !ok {
		return nil, fmt.Errorf("generator: unknown interval %q", interval)
	}
	if limit <= 0 {
		limit = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.now().Unix() / step * step
	start := last - int64(limit-1)*step
	price := t.rnd.Float64()*100 + 1

	candles := make([]model.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		open := price
		closePrice := math.Max(0.01, open*(1+(t.rnd.Float64()-0.5)*0.02))
		high := math.Max(open, closePrice) * (1 + t.rnd.Float64()*0.01)
		low := math.Min(open, closePrice) * (1 - t.rnd.Float64()*0.01)

		candles = append(candles, model.Candle{
			Time:   start + int64(i)*step,
			Open:   round(open, 4),
			High:   round(high, 4),
			Low:    round(low, 4),
			Close:  round(closePrice, 4),
			Volume: round(t.rnd.Float64()*1000, 2),
		})
		price = closePrice
	}

	t.log.Debug("synthetic candles generated", "generator", t.name, "symbol", symbol, "interval", interval, "count", len(candles))
	return candles, nil
}

func splitPair(pair string) (string, string) {
	for _, q := range quoteAssets {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return pair, ""
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
