package port

import (
	"context"

	"tailwatch/internal/domain/model"
)

// SignalPublisher delivers a raised signal to some outside consumer.
type SignalPublisher interface {
	Name() string
	Publish(ctx context.Context, sig model.Signal) error
}
