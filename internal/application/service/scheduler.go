package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tailwatch/internal/application/engine"
	"tailwatch/internal/concurrency/fanin"
	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
	"tailwatch/internal/infrastructure/metrics"
)

var (
	ErrEmptySymbol     = errors.New("symbol is required")
	ErrUnknownSymbol   = errors.New("symbol is not in the instrument universe")
	ErrInvalidInterval = errors.New("unsupported candle interval")
)

// Binance kline intervals.
var supportedIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

func ValidInterval(interval string) bool {
	return supportedIntervals[interval]
}

type Phase int32

const (
	PhaseInitialLoad Phase = iota
	PhaseIdle
	PhaseFetching
	PhaseAnalyzing
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialLoad:
		return "initial_load"
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseAnalyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

type cycleKind string

const (
	cycleInitial   cycleKind = "initial"
	cycleTick      cycleKind = "tick"
	cycleManual    cycleKind = "manual"
	cycleSelection cycleKind = "selection"
	cycleSettings  cycleKind = "settings"
)

// Selection and settings changes only re-run the candle pass.
func (k cycleKind) refreshesUniverse() bool {
	return k == cycleInitial || k == cycleTick || k == cycleManual
}

type SchedulerConfig struct {
	RefreshInterval time.Duration
	CandleInterval  string
	CandleLimit     int
	Threshold       float64
	DefaultSymbol   string
	// SerializeCycles runs one refresh cycle at a time. Off by default, which
	// lets a slow cycle overlap with the next tick or a selection change.
	SerializeCycles bool
}

// AppState is everything the scheduler owns between cycles.
type AppState struct {
	Selected   string
	Interval   string
	Threshold  float64
	Filter     model.FilterSpec
	Universe   model.UniverseSnapshot
	Candles    model.CandleWindow
	LastUpdate time.Time
}

type StateView struct {
	Selected          string           `json:"selected"`
	Interval          string           `json:"interval"`
	Threshold         float64          `json:"threshold"`
	Filter            model.FilterSpec `json:"filter"`
	Phase             string           `json:"phase"`
	Provider          string           `json:"provider"`
	UniverseSize      int              `json:"universe_size"`
	UniverseFetchedAt time.Time        `json:"universe_fetched_at"`
	LastUpdate        time.Time        `json:"last_update"`
	CyclesInFlight    int              `json:"cycles_in_flight"`
	AlertCount        int              `json:"alert_count"`
}

// Settings changes the detection parameters. Nil fields are left untouched.
type Settings struct {
	Interval  *string
	Threshold *float64
}

// Scheduler periodically re-acquires the instrument universe and the candle
// window of the selected instrument, and runs tail detection on the most
// recent candle. Every cycle is a cancellable unit of work.
type Scheduler struct {
	cache   port.CachePort
	storage port.StoragePort
	alerts  *AlertLog
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     SchedulerConfig

	mu       sync.RWMutex
	provider port.MarketDataPort
	state    AppState
	ticker   *time.Ticker

	phase atomic.Int32

	cyclesMu sync.Mutex
	cycles   map[string]context.CancelFunc
	serial   sync.Mutex
	wg       sync.WaitGroup

	manual   chan cycleKind
	done     chan struct{}
	stopOnce sync.Once

	now   func() time.Time
	newID func() string
}

// NewScheduler builds a scheduler. cache and storage may be nil when the
// corresponding backend is disabled.
func NewScheduler(
	provider port.MarketDataPort,
	cache port.CachePort,
	storage port.StoragePort,
	alerts *AlertLog,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Second
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.CandleInterval == "" {
		cfg.CandleInterval = "1m"
	}
	if cfg.DefaultSymbol == "" {
		cfg.DefaultSymbol = "BTCUSDT"
	}

	s := &Scheduler{
		provider: provider,
		cache:    cache,
		storage:  storage,
		alerts:   alerts,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		state: AppState{
			Selected:  cfg.DefaultSymbol,
			Interval:  cfg.CandleInterval,
			Threshold: cfg.Threshold,
			Filter:    model.DefaultFilterSpec(),
		},
		cycles: make(map[string]context.CancelFunc),
		manual: make(chan cycleKind, 1),
		done:   make(chan struct{}),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	s.phase.Store(int32(PhaseInitialLoad))
	return s
}

// Start performs the initial load and then begins the periodic cycle.
// The initial load completes before Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler starting",
		"refresh", s.cfg.RefreshInterval.String(),
		"symbol", s.cfg.DefaultSymbol,
		"interval", s.cfg.CandleInterval,
		"threshold", s.cfg.Threshold,
		"serialize_cycles", s.cfg.SerializeCycles)

	s.runCycle(ctx, cycleInitial)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	s.mu.Lock()
	s.ticker = ticker
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, ticker.C)
}

// Stop halts the ticker, cancels in-flight cycles and waits for the loop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		s.mu.Unlock()

		close(s.done)

		s.cyclesMu.Lock()
		for _, cancel := range s.cycles {
			cancel()
		}
		s.cyclesMu.Unlock()
	})
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, ticks <-chan time.Time) {
	defer s.wg.Done()
	s.logger.Info("refresh loop started")

	triggers := fanin.FanIn(
		relay[time.Time](ctx, s.done, ticks, cycleTick),
		relay[cycleKind](ctx, s.done, s.manual, cycleManual),
	)
	defer func() {
		for range triggers {
		}
	}()

	for {
		select {
		case kind, ok := <-triggers:
			if !ok {
				return
			}
			// Cycles are not awaited: the next tick fires on schedule even if
			// this one is still waiting on the provider.
			s.wg.Add(1)
			go func(k cycleKind) {
				defer s.wg.Done()
				s.runCycle(ctx, k)
			}(kind)
		case <-s.done:
			s.logger.Info("refresh loop stopping by done channel")
			return
		case <-ctx.Done():
			s.logger.Info("refresh loop cancelled by context")
			return
		}
	}
}

// relay turns every value received on src into a trigger of the given kind
// until ctx or done ends. The returned channel is closed on exit.
func relay[T any](ctx context.Context, done <-chan struct{}, src <-chan T, kind cycleKind) <-chan cycleKind {
	out := make(chan cycleKind)
	go func() {
		defer close(out)
		for {
			select {
			case <-src:
				select {
				case out <- kind:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// RequestRefresh asks the loop for a full cycle outside the timer. At most one
// request is queued.
func (s *Scheduler) RequestRefresh() bool {
	select {
	case s.manual <- cycleManual:
		return true
	default:
		return false
	}
}

func (s *Scheduler) runCycle(parent context.Context, kind cycleKind) *model.Signal {
	if s.cfg.SerializeCycles {
		s.serial.Lock()
		defer s.serial.Unlock()
	}

	ctx, id, finish := s.beginCycle(parent)
	defer finish()

	start := time.Now()
	s.metrics.CyclesInFlight.Inc()
	defer s.metrics.CyclesInFlight.Dec()

	log := s.logger.With("cycle", id, "kind", string(kind))
	log.Debug("refresh cycle started")

	fetching, analyzing := PhaseFetching, PhaseAnalyzing
	if kind == cycleInitial {
		fetching, analyzing = PhaseInitialLoad, PhaseInitialLoad
	}

	if kind.refreshesUniverse() {
		s.setPhase(fetching)
		s.refreshUniverse(ctx, log)
	}

	s.setPhase(fetching)
	window := s.refreshCandles(ctx, log)

	s.setPhase(analyzing)
	sig := s.analyze(window, log)

	s.setPhase(PhaseIdle)

	elapsed := time.Since(start)
	s.metrics.CyclesTotal.WithLabelValues(string(kind)).Inc()
	s.metrics.CycleDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	log.Debug("refresh cycle completed", "duration", elapsed)

	return sig
}

func (s *Scheduler) beginCycle(parent context.Context) (context.Context, string, func()) {
	ctx, cancel := context.WithCancel(parent)
	id := s.newID()

	s.cyclesMu.Lock()
	s.cycles[id] = cancel
	s.cyclesMu.Unlock()

	// a cycle started after Stop must not outlive it
	select {
	case <-s.done:
		cancel()
	default:
	}

	return ctx, id, func() {
		s.cyclesMu.Lock()
		delete(s.cycles, id)
		s.cyclesMu.Unlock()
		cancel()
	}
}

func (s *Scheduler) refreshUniverse(ctx context.Context, log *slog.Logger) {
	provider := s.currentProvider()

	instruments, err := provider.ListInstruments(ctx)
	if err != nil {
		s.acquisitionFailed(log, "instruments", provider.Name(), err)
		return
	}

	snapshot := model.UniverseSnapshot{
		Instruments: instruments,
		FetchedAt:   s.now().UTC(),
		Source:      provider.Name(),
	}

	s.mu.Lock()
	s.state.Universe = snapshot
	s.mu.Unlock()

	s.metrics.UniverseSize.Set(float64(len(instruments)))
	log.Info("instrument universe refreshed", "provider", provider.Name(), "count", len(instruments))

	if s.cache != nil {
		if err := s.cache.SetUniverse(ctx, snapshot); err != nil {
			log.Error("failed to cache universe snapshot", "error", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.SaveUniverseSnapshot(ctx, snapshot); err != nil {
			log.Error("failed to archive universe snapshot", "error", err)
		}
	}
}

func (s *Scheduler) refreshCandles(ctx context.Context, log *slog.Logger) model.CandleWindow {
	s.mu.RLock()
	symbol, interval := s.state.Selected, s.state.Interval
	provider := s.provider
	s.mu.RUnlock()

	candles, err := provider.GetCandles(ctx, symbol, interval, s.cfg.CandleLimit)
	if err != nil {
		s.acquisitionFailed(log, "candles", provider.Name(), err)
		candles = nil
	}

	window := model.CandleWindow{Symbol: symbol, Interval: interval, Candles: candles}

	s.mu.Lock()
	s.state.Candles = window
	s.state.LastUpdate = s.now().UTC()
	s.mu.Unlock()

	if s.cache != nil && len(candles) > 0 {
		if err := s.cache.SetCandles(ctx, window); err != nil {
			log.Error("failed to cache candle window", "symbol", symbol, "error", err)
		}
	}

	return window
}

// analyze runs the detector on the newest candle of window. The signal is
// attributed to the symbol the window was fetched for.
func (s *Scheduler) analyze(window model.CandleWindow, log *slog.Logger) *model.Signal {
	latest, ok := engine.LatestCandle(window.Candles)
	if !ok {
		return nil
	}

	s.mu.RLock()
	threshold := s.state.Threshold
	s.mu.RUnlock()

	result, ok := engine.DetectTail(latest, threshold)
	if !ok {
		return nil
	}

	sig := model.Signal{
		ID:           s.newID(),
		Symbol:       window.Symbol,
		Direction:    result.Direction,
		RatioPercent: result.RatioPercent,
		CandleTime:   latest.Time,
		DetectedAt:   s.now().UTC(),
	}
	s.alerts.Append(sig)
	s.metrics.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()

	log.Info("tail signal raised",
		"symbol", sig.Symbol,
		"direction", sig.Direction,
		"ratio", sig.RatioPercent,
		"candle_time", sig.CandleTime)

	return &sig
}

func (s *Scheduler) acquisitionFailed(log *slog.Logger, source, provider string, err error) {
	s.metrics.AcquisitionFailures.WithLabelValues(source).Inc()
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("acquisition cancelled", "source", source, "provider", provider)
	case errors.Is(err, port.ErrAcquisition):
		log.Warn("acquisition failed, degrading", "source", source, "provider", provider, "error", err)
	default:
		log.Error("unexpected provider error, degrading", "source", source, "provider", provider, "error", err)
	}
}

// Select switches the analysed instrument and immediately runs a candle pass
// for it. The alert log is left untouched. The pass runs to completion even
// if ctx is cancelled; only Stop aborts it.
func (s *Scheduler) Select(ctx context.Context, symbol string) (*model.Signal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrEmptySymbol
	}

	s.mu.Lock()
	if len(s.state.Universe.Instruments) > 0 && !containsSymbol(s.state.Universe.Instruments, symbol) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	prev := s.state.Selected
	s.state.Selected = symbol
	s.mu.Unlock()

	s.logger.Info("instrument selected", "from", prev, "to", symbol)
	return s.runCycle(context.WithoutCancel(ctx), cycleSelection), nil
}

// ApplySettings updates interval and threshold and runs one candle pass.
// Like Select, the pass ignores cancellation of ctx.
func (s *Scheduler) ApplySettings(ctx context.Context, settings Settings) (*model.Signal, error) {
	if settings.Interval != nil && !ValidInterval(*settings.Interval) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInterval, *settings.Interval)
	}

	s.mu.Lock()
	if settings.Interval != nil {
		s.state.Interval = *settings.Interval
	}
	if settings.Threshold != nil {
		s.state.Threshold = *settings.Threshold
	}
	interval, threshold := s.state.Interval, s.state.Threshold
	s.mu.Unlock()

	s.logger.Info("detection settings updated", "interval", interval, "threshold", threshold)
	return s.runCycle(context.WithoutCancel(ctx), cycleSettings), nil
}

// SetProvider swaps the market data source used by subsequent cycles.
func (s *Scheduler) SetProvider(provider port.MarketDataPort) {
	s.mu.Lock()
	prev := s.provider
	s.provider = provider
	s.mu.Unlock()
	s.logger.Info("market data provider switched", "from", prev.Name(), "to", provider.Name())
}

func (s *Scheduler) SetFilter(spec model.FilterSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Filter = spec
}

// Filtered applies the current filter to the latest snapshot. It also returns
// the snapshot size.
func (s *Scheduler) Filtered() ([]model.Instrument, int) {
	s.mu.RLock()
	universe := s.state.Universe.Instruments
	spec := s.state.Filter
	s.mu.RUnlock()

	return engine.FilterInstruments(universe, spec), len(universe)
}

func (s *Scheduler) Candles() model.CandleWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.state.Candles
	w.Candles = append([]model.Candle(nil), w.Candles...)
	return w
}

func (s *Scheduler) Alerts() *AlertLog {
	return s.alerts
}

func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Scheduler) State() StateView {
	s.cyclesMu.Lock()
	inFlight := len(s.cycles)
	s.cyclesMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateView{
		Selected:          s.state.Selected,
		Interval:          s.state.Interval,
		Threshold:         s.state.Threshold,
		Filter:            s.state.Filter,
		Phase:             s.Phase().String(),
		Provider:          s.provider.Name(),
		UniverseSize:      len(s.state.Universe.Instruments),
		UniverseFetchedAt: s.state.Universe.FetchedAt,
		LastUpdate:        s.state.LastUpdate,
		CyclesInFlight:    inFlight,
		AlertCount:        s.alerts.Count(),
	}
}

func (s *Scheduler) currentProvider() port.MarketDataPort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

func containsSymbol(instruments []model.Instrument, symbol string) bool {
	for _, i := range instruments {
		if i.Symbol == symbol {
			return true
		}
	}
	return false
}
