package port

import (
	"context"
	"time"

	"tailwatch/internal/domain/model"
)

type StoragePort interface {
	SaveUniverseSnapshot(ctx context.Context, snapshot model.UniverseSnapshot) error
	LastSnapshotTime(ctx context.Context) (time.Time, error)
	Ping(ctx context.Context) error
	Close() error
}
