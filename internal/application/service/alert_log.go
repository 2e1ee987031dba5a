package service

import (
	"sync"

	"tailwatch/internal/domain/model"
)

// AlertLog accumulates signals for the lifetime of the process, newest first.
// There is no removal and no capacity bound.
type AlertLog struct {
	mu      sync.RWMutex
	signals []model.Signal
	count   int
	sink    chan<- model.Signal
}

func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// SetSink registers a channel that receives every appended signal. Delivery is
// best effort: when the channel is full the signal is only kept in the log.
func (l *AlertLog) SetSink(sink chan<- model.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

func (l *AlertLog) Append(sig model.Signal) {
	l.mu.Lock()
	l.signals = append(l.signals, model.Signal{})
	copy(l.signals[1:], l.signals)
	l.signals[0] = sig
	l.count++
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		select {
		case sink <- sig:
		default:
		}
	}
}

// Signals returns a copy of the log, most recent first.
func (l *AlertLog) Signals() []model.Signal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Signal, len(l.signals))
	copy(out, l.signals)
	return out
}

func (l *AlertLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
