package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
)

const (
	DefaultBaseURL = "https://api.binance.com"

	statusTrading = "TRADING"
	maxBodyBytes  = 32 << 20
)

// Binance reads the public spot REST API. No credentials are needed.
type Binance struct {
	name    string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewBinance(baseURL string, timeout time.Duration, log *slog.Logger) *Binance {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Binance{
		name:    "binance",
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (b *Binance) Name() string {
	return b.name
}

// ListInstruments joins the TRADING symbols of exchangeInfo with the 24h
// ticker. Symbols missing from the ticker get price and volume 0.
func (b *Binance) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	var p fastjson.Parser

	info, err := b.get(ctx, &p, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	symbols := info.GetArray("symbols")
	if symbols == nil {
		return nil, fmt.Errorf("exchangeInfo: missing symbols array: %w", port.ErrAcquisition)
	}

	instruments := make([]model.Instrument, 0, len(symbols))
	index := make(map[string]int, len(symbols))
	for _, s := range symbols {
		if string(s.GetStringBytes("status")) != statusTrading {
			continue
		}
		symbol := string(s.GetStringBytes("symbol"))
		if symbol == "" {
			continue
		}
		index[symbol] = len(instruments)
		instruments = append(instruments, model.Instrument{
			Symbol:     symbol,
			BaseAsset:  string(s.GetStringBytes("baseAsset")),
			QuoteAsset: string(s.GetStringBytes("quoteAsset")),
		})
	}

	// exchangeInfo values are no longer referenced; the parser can be reused.
	tickers, err := b.get(ctx, &p, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}
	rows, err := tickers.Array()
	if err != nil {
		return nil, fmt.Errorf("ticker/24hr: %v: %w", err, port.ErrAcquisition)
	}
	for _, t := range rows {
		i, ok := index[string(t.GetStringBytes("symbol"))]
		if !ok {
			continue
		}
		instruments[i].Price = decimalString(t, "lastPrice")
		instruments[i].Volume = decimalString(t, "volume")
	}

	b.log.Debug("instrument universe fetched", "exchange", b.name, "symbols", len(symbols), "trading", len(instruments))
	return instruments, nil
}

// GetCandles returns at most limit klines, oldest first. Open time is
// converted from milliseconds to seconds.
func (b *Binance) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var p fastjson.Parser
	v, err := b.get(ctx, &p, "/api/v3/klines", q)
	if err != nil {
		return nil, err
	}
	rows, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("klines %s: %v: %w", symbol, err, port.ErrAcquisition)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s row %d: %v: %w", symbol, i, err, port.ErrAcquisition)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (b *Binance) get(ctx context.Context, p *fastjson.Parser, path string, q url.Values) (*fastjson.Value, error) {
	endpoint := b.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %v: %w", path, err, port.ErrAcquisition)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %v: %w", path, err, port.ErrAcquisition)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %v: %w", path, err, port.ErrAcquisition)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode, apiMessage(body), port.ErrAcquisition)
	}

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%s: parse: %v: %w", path, err, port.ErrAcquisition)
	}
	return v, nil
}

// kline layout: [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(row *fastjson.Value) (model.Candle, error) {
	fields, err := row.Array()
	if err != nil {
		return model.Candle{}, err
	}
	if len(fields) < 6 {
		return model.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}

	openTime, err := fields[0].Int64()
	if err != nil {
		return model.Candle{}, fmt.Errorf("open time: %v", err)
	}

	var values [5]float64
	for i := range values {
		raw, err := fields[i+1].StringBytes()
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %v", i+1, err)
		}
		values[i], err = strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %v", i+1, err)
		}
	}

	return model.Candle{
		Time:   openTime / 1000,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// decimalString reads a quoted decimal field, 0 when absent or malformed.
func decimalString(v *fastjson.Value, key string) float64 {
	f, err := strconv.ParseFloat(string(v.GetStringBytes(key)), 64)
	if err != nil {
		return 0
	}
	return f
}

// apiMessage extracts the msg of a Binance error payload, falling back to a
// truncated body.
func apiMessage(body []byte) string {
	if v, err := fastjson.ParseBytes(body); err == nil {
		if msg := v.GetStringBytes("msg"); len(msg) > 0 {
			return string(msg)
		}
	}
	return truncate(string(body), 120)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
