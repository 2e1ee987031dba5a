package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tailwatch/internal/domain/model"
	"tailwatch/internal/domain/port"
)

var ErrModeUnavailable = errors.New("no market data provider for mode")

// ModeService tracks whether the scheduler is fed by the live exchange or the
// synthetic generator, and hands out the provider for the active mode.
type ModeService struct {
	currentMode model.DataMode
	providers   map[model.DataMode]port.MarketDataPort
	mu          sync.RWMutex
	logger      *slog.Logger
}

func NewModeService(initial model.DataMode, providers map[model.DataMode]port.MarketDataPort, logger *slog.Logger) *ModeService {
	return &ModeService{
		currentMode: initial,
		providers:   providers,
		logger:      logger,
	}
}

// SwitchMode makes mode current and returns its provider. Switching to the
// current mode is a no-op that still returns the provider.
func (s *ModeService) SwitchMode(ctx context.Context, mode model.DataMode) (port.MarketDataPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	provider, ok := s.providers[mode]
	if !ok || provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrModeUnavailable, mode)
	}

	if s.currentMode != mode {
		s.logger.Info("mode_service: mode updated", "old", s.currentMode.String(), "new", mode.String())
		s.currentMode = mode
	}
	return provider, nil
}

func (s *ModeService) GetCurrentMode() model.DataMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentMode
}

func (s *ModeService) CurrentProvider() port.MarketDataPort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providers[s.currentMode]
}
