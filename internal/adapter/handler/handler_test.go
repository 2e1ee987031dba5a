package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailwatch/internal/application/service"
	"tailwatch/internal/application/usecase"
	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
	"tailwatch/internal/infrastructure/metrics"
)

type stubProvider struct {
	name        string
	mu          sync.Mutex
	instruments []model.Instrument
	candles     map[string][]model.Candle
	err         error
}

func (p *stubProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "stub"
}

func (p *stubProvider) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instruments, p.err
}

func (p *stubProvider) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.candles[symbol], nil
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		instruments: []model.Instrument{
			{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Price: 65000, Volume: 1000},
			{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Price: 3200, Volume: 9000},
			{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Price: 0.05, Volume: 400},
			{Symbol: "ETHBUSD", BaseAsset: "ETH", QuoteAsset: "BUSD", Price: 3199, Volume: 50},
		},
		candles: map[string][]model.Candle{
			"BTCUSDT": {{Time: 60, Open: 10, High: 20, Low: 5, Close: 12}},
			"ETHUSDT": {{Time: 60, Open: 10, High: 11, Low: 2, Close: 10.5}},
		},
	}
}

// newLoadedScheduler returns a scheduler that has completed one full cycle.
func newLoadedScheduler(t *testing.T, provider port.MarketDataPort) *service.Scheduler {
	t.Helper()
	s := service.NewScheduler(provider, nil, nil, service.NewAlertLog(),
		metrics.New(prometheus.NewRegistry()), discardLogger(),
		service.SchedulerConfig{RefreshInterval: time.Hour, Threshold: 50})
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestInstrumentHandler_List(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	h := NewInstrumentHandler(s, discardLogger())

	tests := []struct {
		name    string
		query   string
		symbols []string
	}{
		{name: "no filter", query: "", symbols: []string{"BTCUSDT", "ETHUSDT", "ETHBTC", "ETHBUSD"}},
		{name: "search is case insensitive", query: "?search=eth", symbols: []string{"ETHUSDT", "ETHBTC", "ETHBUSD"}},
		{name: "quote exact", query: "?quote=USDT", symbols: []string{"BTCUSDT", "ETHUSDT"}},
		{name: "price gte", query: "?price_op=gte&price=3200", symbols: []string{"BTCUSDT", "ETHUSDT"}},
		{name: "volume lt with search", query: "?search=eth&volume_op=lt&volume=1000", symbols: []string{"ETHBTC", "ETHBUSD"}},
		{name: "bad number disables dimension", query: "?price_op=eq&price=abc", symbols: []string{"BTCUSDT", "ETHUSDT", "ETHBTC", "ETHBUSD"}},
		{name: "no match", query: "?search=doge", symbols: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/instruments"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Count       int                `json:"count"`
				Total       int                `json:"total"`
				Instruments []model.Instrument `json:"instruments"`
			}
			decode(t, rec, &body)

			got := make([]string, 0, len(body.Instruments))
			for _, i := range body.Instruments {
				got = append(got, i.Symbol)
			}
			assert.Equal(t, tt.symbols, got)
			assert.Equal(t, len(tt.symbols), body.Count)
			assert.Equal(t, 4, body.Total)
		})
	}
}

func TestInstrumentHandler_ListStoresFilter(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	h := NewInstrumentHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/instruments?quote=BTC", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	filtered, total := s.Filtered()
	assert.Equal(t, 4, total)
	require.Len(t, filtered, 1)
	assert.Equal(t, "ETHBTC", filtered[0].Symbol)
	assert.Equal(t, "BTC", s.State().Filter.QuoteAsset)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/instruments", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	filtered, _ = s.Filtered()
	assert.Len(t, filtered, 4, "a bare request resets the stored filter")
	assert.Equal(t, model.DefaultFilterSpec(), s.State().Filter)
}

func TestParseFilterSpec_Defaults(t *testing.T) {
	spec := parseFilterSpec(nil)
	assert.Equal(t, model.DefaultFilterSpec(), spec)
}

func TestCandleHandler_Current(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	h := NewCandleHandler(s, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/candles", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var window model.CandleWindow
	decode(t, rec, &window)
	assert.Equal(t, "BTCUSDT", window.Symbol)
	assert.Equal(t, "1m", window.Interval)
	assert.Len(t, window.Candles, 1)
}

func TestCandleHandler_BySymbol(t *testing.T) {
	provider := newStubProvider()
	s := newLoadedScheduler(t, provider)
	uc := usecase.NewCandleUseCase(nil, func() port.MarketDataPort { return provider }, 100, discardLogger())
	h := NewCandleHandler(s, uc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/candles/ethusdt?interval=5m", nil)
	req.SetPathValue("symbol", "ethusdt")
	rec := httptest.NewRecorder()
	h.BySymbol(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbol   string         `json:"symbol"`
		Interval string         `json:"interval"`
		Cached   bool           `json:"cached"`
		Candles  []model.Candle `json:"candles"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "ETHUSDT", body.Symbol)
	assert.Equal(t, "5m", body.Interval)
	assert.False(t, body.Cached)
	assert.Len(t, body.Candles, 1)
	// lookup does not change the selection
	assert.Equal(t, "BTCUSDT", s.State().Selected)

	req = httptest.NewRequest(http.MethodGet, "/candles/ethusdt?interval=7m", nil)
	req.SetPathValue("symbol", "ethusdt")
	rec = httptest.NewRecorder()
	h.BySymbol(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCandleHandler_BySymbolUpstreamFailure(t *testing.T) {
	provider := newStubProvider()
	s := newLoadedScheduler(t, provider)
	failing := &stubProvider{err: port.ErrAcquisition}
	uc := usecase.NewCandleUseCase(nil, func() port.MarketDataPort { return failing }, 100, discardLogger())
	h := NewCandleHandler(s, uc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/candles/BTCUSDT", nil)
	req.SetPathValue("symbol", "BTCUSDT")
	rec := httptest.NewRecorder()
	h.BySymbol(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestControlHandler_SelectAndAlerts(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	control := NewControlHandler(s, discardLogger())
	alerts := NewAlertHandler(s.Alerts())

	rec := httptest.NewRecorder()
	control.Select(rec, httptest.NewRequest(http.MethodPost, "/selection", strings.NewReader(`{"symbol":"ethusdt"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var selected struct {
		State  service.StateView `json:"state"`
		Signal *model.Signal     `json:"signal"`
	}
	decode(t, rec, &selected)
	assert.Equal(t, "ETHUSDT", selected.State.Selected)
	require.NotNil(t, selected.Signal)
	assert.Equal(t, model.DirectionBuy, selected.Signal.Direction)
	assert.Equal(t, 88.89, selected.Signal.RatioPercent)

	rec = httptest.NewRecorder()
	alerts.List(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	var log struct {
		Count  int            `json:"count"`
		Alerts []model.Signal `json:"alerts"`
	}
	decode(t, rec, &log)
	assert.Equal(t, 2, log.Count)
	require.Len(t, log.Alerts, 2)
	assert.Equal(t, "ETHUSDT", log.Alerts[0].Symbol)
	assert.Equal(t, "BTCUSDT", log.Alerts[1].Symbol)
}

func TestControlHandler_SelectErrors(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	control := NewControlHandler(s, discardLogger())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "empty symbol", body: `{"symbol":" "}`, status: http.StatusBadRequest},
		{name: "unknown symbol", body: `{"symbol":"DOGEUSDT"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			control.Select(rec, httptest.NewRequest(http.MethodPost, "/selection", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "BTCUSDT", s.State().Selected)
}

func TestControlHandler_Settings(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	control := NewControlHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	control.Settings(rec, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`{"interval":"15m","threshold":75}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	state := s.State()
	assert.Equal(t, "15m", state.Interval)
	assert.Equal(t, 75.0, state.Threshold)

	for _, body := range []string{`{"interval":"2m"}`, `{}`, `nope`} {
		rec = httptest.NewRecorder()
		control.Settings(rec, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestControlHandler_StateAndRefresh(t *testing.T) {
	s := newLoadedScheduler(t, newStubProvider())
	control := NewControlHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	control.State(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state service.StateView
	decode(t, rec, &state)
	assert.Equal(t, "BTCUSDT", state.Selected)
	assert.Equal(t, 4, state.UniverseSize)
	assert.Equal(t, "stub", state.Provider)
	assert.Equal(t, 1, state.AlertCount)

	rec = httptest.NewRecorder()
	control.Refresh(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		storage pinger
		cache   pinger
		status  int
		checks  map[string]string
	}{
		{
			name:   "all disabled",
			status: http.StatusOK,
			checks: map[string]string{"database": "disabled", "redis": "disabled"},
		},
		{
			name:    "healthy",
			storage: stubPinger{},
			cache:   stubPinger{},
			status:  http.StatusOK,
			checks:  map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:    "redis down",
			storage: stubPinger{},
			cache:   stubPinger{err: errors.New("refused")},
			status:  http.StatusServiceUnavailable,
			checks:  map[string]string{"database": "healthy", "redis": "unhealthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.storage, tt.cache, nil, discardLogger())
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Checks map[string]string `json:"checks"`
			}
			decode(t, rec, &body)
			assert.Equal(t, tt.checks, body.Checks)
		})
	}
}

func TestModeHandler(t *testing.T) {
	live, test := newStubProvider(), newStubProvider()
	live.name, test.name = "binance", "generator"
	ms := service.NewModeService(model.LiveMode, map[model.DataMode]port.MarketDataPort{
		model.LiveMode: live,
		model.TestMode: test,
	}, discardLogger())

	var switched []model.DataMode
	switchFn := func(ctx context.Context, mode model.DataMode) (string, error) {
		provider, err := ms.SwitchMode(ctx, mode)
		if err != nil {
			return "", err
		}
		switched = append(switched, mode)
		return provider.Name(), nil
	}
	h := NewModeHandler(ms, switchFn, discardLogger())

	var body modeResponse

	rec := httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/mode", nil))
	decode(t, rec, &body)
	assert.Equal(t, modeResponse{Mode: "live", Provider: "binance"}, body)

	rec = httptest.NewRecorder()
	h.SwitchToTest(rec, httptest.NewRequest(http.MethodPost, "/mode/test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, modeResponse{Mode: "test", Provider: "generator", Switched: true}, body)

	rec = httptest.NewRecorder()
	h.SwitchToTest(rec, httptest.NewRequest(http.MethodPost, "/mode/test", nil))
	body = modeResponse{}
	decode(t, rec, &body)
	assert.Equal(t, modeResponse{Mode: "test", Provider: "generator"}, body)

	rec = httptest.NewRecorder()
	h.Current(rec, httptest.NewRequest(http.MethodGet, "/mode", nil))
	body = modeResponse{}
	decode(t, rec, &body)
	assert.Equal(t, modeResponse{Mode: "test", Provider: "generator"}, body)

	assert.Equal(t, []model.DataMode{model.TestMode}, switched)

	failing := NewModeHandler(ms, func(context.Context, model.DataMode) (string, error) { return "", errors.New("boom") }, discardLogger())
	rec = httptest.NewRecorder()
	failing.SwitchToLive(rec, httptest.NewRequest(http.MethodPost, "/mode/live", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAlertHub_StreamsSignals(t *testing.T) {
	hub := NewAlertHub(discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	sig := model.Signal{ID: "s1", Symbol: "BTCUSDT", Direction: model.DirectionSell, RatioPercent: 53.33}
	require.NoError(t, hub.Publish(context.Background(), sig))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Type   string       `json:"type"`
		Signal model.Signal `json:"signal"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(msg)).Decode(&envelope))
	assert.Equal(t, "signal", envelope.Type)
	assert.Equal(t, sig.ID, envelope.Signal.ID)
	assert.Equal(t, "websocket", hub.Name())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
