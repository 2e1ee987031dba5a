package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tailwatch/internal/adapter/cache"
	"tailwatch/internal/adapter/exchange"
	"tailwatch/internal/adapter/generator"
	"tailwatch/internal/adapter/handler"
	"tailwatch/internal/adapter/notifier"
	"tailwatch/internal/adapter/storage"
	"tailwatch/internal/application/service"
	"tailwatch/internal/application/usecase"
	"tailwatch/internal/concurrency/worker"
	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
	"tailwatch/internal/infrastructure/config"
	"tailwatch/internal/infrastructure/logger"
	"tailwatch/internal/infrastructure/metrics"
	"tailwatch/internal/infrastructure/server"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to config file")
	port1      = flag.Int("port", 0, "Port number")
	helpFlag   = flag.Bool("help", false, "Show help")
)

type App struct {
	config       *config.Config
	logger       *slog.Logger
	server       *server.Server
	storage      port.StoragePort
	cache        port.CachePort
	scheduler    *service.Scheduler
	modeService  *service.ModeService
	hub          *handler.AlertHub
	cancel       context.CancelFunc
	deliveryDone <-chan model.Signal
	mu           sync.Mutex
}

func main() {
	flag.Parse()

	if *helpFlag {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *port1 != 0 {
		cfg.Server.Port = *port1
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting tailwatch", "version", "1.0.0", "mode", cfg.Mode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	app := &App{config: cfg, logger: log}

	if cfg.PostgreSQL.Enabled {
		postgresAdapter, err := storage.NewPostgresAdapter(cfg.PostgresDSN(), cfg.PostgreSQL.MaxOpenConns, cfg.PostgreSQL.ConnMaxLifetime)
		if err != nil {
			log.Error("failed to initialize postgres", "error", err)
			os.Exit(1)
		}
		if err := postgresAdapter.InitSchema(context.Background()); err != nil {
			log.Error("failed to initialize schema", "error", err)
			os.Exit(1)
		}
		if last, err := postgresAdapter.LastSnapshotTime(context.Background()); err != nil {
			log.Warn("failed to read last archived snapshot", "error", err)
		} else if !last.IsZero() {
			log.Info("instrument archive found", "last_snapshot", last)
		}
		app.storage = postgresAdapter
	}

	var redisAdapter *cache.RedisAdapter
	if cfg.Redis.Enabled {
		redisAdapter, err = cache.NewRedisAdapter(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.Error("failed to initialize redis", "error", err)
			os.Exit(1)
		}
		app.cache = redisAdapter
	}

	initialMode, _ := model.ParseDataMode(cfg.Mode)
	app.modeService = service.NewModeService(initialMode, map[model.DataMode]port.MarketDataPort{
		model.LiveMode: exchange.NewBinance(cfg.Binance.BaseURL, cfg.Binance.Timeout, log),
		model.TestMode: generator.NewTestGenerator("test-generator", cfg.TestGenerator.Pairs, cfg.TestGenerator.Seed, log),
	}, log)

	alerts := service.NewAlertLog()
	app.hub = handler.NewAlertHub(log)

	publishers := []port.SignalPublisher{app.hub}
	if redisAdapter != nil {
		publishers = append(publishers, redisAdapter)
	}
	if cfg.Webhook.Enabled {
		publishers = append(publishers, notifier.NewWebhook(cfg.Webhook.URL, cfg.Workers.PublishTimeout, log))
	}

	app.scheduler = service.NewScheduler(
		app.modeService.CurrentProvider(),
		app.cache,
		app.storage,
		alerts,
		m,
		log,
		service.SchedulerConfig{
			RefreshInterval: cfg.Scheduler.RefreshInterval,
			CandleInterval:  cfg.Scheduler.CandleInterval,
			CandleLimit:     cfg.Scheduler.CandleLimit,
			Threshold:       cfg.Scheduler.Threshold,
			DefaultSymbol:   cfg.Scheduler.DefaultSymbol,
			SerializeCycles: cfg.Scheduler.SerializeCycles,
		},
	)

	candleUseCase := usecase.NewCandleUseCase(app.cache, app.modeService.CurrentProvider, cfg.Scheduler.CandleLimit, log)

	instrumentHandler := handler.NewInstrumentHandler(app.scheduler, log)
	candleHandler := handler.NewCandleHandler(app.scheduler, candleUseCase, log)
	alertHandler := handler.NewAlertHandler(alerts)
	controlHandler := handler.NewControlHandler(app.scheduler, log)
	modeHandler := handler.NewModeHandler(app.modeService, app.switchMode, log)
	healthHandler := handler.NewHealthHandler(app.storage, app.cache, app.scheduler, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /instruments", instrumentHandler.List)
	mux.HandleFunc("GET /candles", candleHandler.Current)
	mux.HandleFunc("GET /candles/{symbol}", candleHandler.BySymbol)
	mux.HandleFunc("GET /alerts", alertHandler.List)
	mux.HandleFunc("GET /alerts/ws", app.hub.ServeWS)
	mux.HandleFunc("POST /selection", controlHandler.Select)
	mux.HandleFunc("POST /settings", controlHandler.Settings)
	mux.HandleFunc("POST /refresh", controlHandler.Refresh)
	mux.HandleFunc("GET /state", controlHandler.State)
	mux.HandleFunc("GET /mode", modeHandler.Current)
	mux.HandleFunc("POST /mode/test", modeHandler.SwitchToTest)
	mux.HandleFunc("POST /mode/live", modeHandler.SwitchToLive)
	mux.HandleFunc("GET /health", healthHandler.Check)
	mux.Handle("GET /metrics", m.Handler())

	srv := server.NewServer(cfg.Server.Port, mux, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, log)
	app.server = srv

	go func() {
		if err := srv.Start(); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.startDelivery(ctx, alerts, publishers, m)
	app.scheduler.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down gracefully")
	app.shutdown()
}

// startDelivery hands every appended signal to the publisher pool.
func (a *App) startDelivery(ctx context.Context, alerts *service.AlertLog, publishers []port.SignalPublisher, m *metrics.Metrics) {
	sink := make(chan model.Signal, a.config.Workers.QueueSize)
	alerts.SetSink(sink)

	pool := worker.NewPool(a.config.Workers.Count, publishers, m, a.config.Workers.PublishTimeout, a.logger)
	processed := pool.Start(ctx, sink)

	done := make(chan model.Signal)
	go func() {
		defer close(done)
		for range processed {
		}
	}()
	a.deliveryDone = done

	a.logger.Info("signal delivery started", "workers", a.config.Workers.Count, "publishers", len(publishers))
}

func (a *App) switchMode(ctx context.Context, newMode model.DataMode) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	provider, err := a.modeService.SwitchMode(ctx, newMode)
	if err != nil {
		return "", err
	}

	a.scheduler.SetProvider(provider)
	a.scheduler.RequestRefresh()
	return provider.Name(), nil
}

func (a *App) shutdown() {
	a.scheduler.Stop()

	if a.cancel != nil {
		a.cancel()
	}
	if a.deliveryDone != nil {
		<-a.deliveryDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer shutdownCancel()

	_ = a.hub.Close()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", "error", err)
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("failed to close postgres", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  tailwatch [--config <path>] [--port <N>]")
	fmt.Println("  tailwatch --help")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config PATH  Path to the YAML config (default configs/config.yaml)")
	fmt.Println("  --port N       Port number")
}
