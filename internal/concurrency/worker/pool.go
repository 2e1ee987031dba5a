package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tailwatch/internal/concurrency/fanout"
	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
	"tailwatch/internal/infrastructure/metrics"
)

// Pool delivers raised signals to every configured publisher.
// A failed publish is logged and counted; delivery to the remaining
// publishers continues.
type Pool struct {
	workers    int
	publishers []port.SignalPublisher
	metrics    *metrics.Metrics
	timeout    time.Duration
	logger     *slog.Logger
}

func NewPool(workers int, publishers []port.SignalPublisher, m *metrics.Metrics, timeout time.Duration, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pool{
		workers:    workers,
		publishers: publishers,
		metrics:    m,
		timeout:    timeout,
		logger:     logger,
	}
}

// Start reads signals from in and returns a channel of delivered signals.
// The returned channel is closed once all workers have finished.
func (p *Pool) Start(ctx context.Context, in <-chan model.Signal) <-chan model.Signal {
	out := make(chan model.Signal)
	var wg sync.WaitGroup

	lanes := fanout.FanOut(ctx, in, p.workers)

	wg.Add(len(lanes))
	for i, lane := range lanes {
		go func(id int, lane <-chan model.Signal) {
			defer wg.Done()
			p.workerLoop(ctx, id, lane, out)
		}(i, lane)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (p *Pool) workerLoop(ctx context.Context, id int, in <-chan model.Signal, out chan<- model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			p.processOne(ctx, id, sig)

			select {
			case <-ctx.Done():
				return
			case out <- sig:
			}
		}
	}
}

func (p *Pool) processOne(ctx context.Context, id int, sig model.Signal) {
	for _, pub := range p.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := pub.Publish(pubCtx, sig)
		cancel()
		if err != nil {
			p.metrics.PublishFailures.WithLabelValues(pub.Name()).Inc()
			p.logger.Error("worker: publish failed", "worker", id, "publisher", pub.Name(), "signal", sig.ID, "symbol", sig.Symbol, "err", err)
			continue
		}
		p.logger.Debug("worker: signal delivered", "worker", id, "publisher", pub.Name(), "signal", sig.ID)
	}
}
