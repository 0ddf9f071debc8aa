package cache

import (
	"context"
	"time"

	"stokbatch/backend/internal/domain"
)

// BatchSnapshotCache holds a company's purchase batch snapshot between
// writes. Writers must Invalidate after any purchase or sale mutation so
// the next read rebuilds from the store.
type BatchSnapshotCache interface {
	Get(ctx context.Context, companyID string) ([]domain.PurchaseBatch, bool, error)
	Set(ctx context.Context, companyID string, batches []domain.PurchaseBatch, ttl time.Duration) error
	Invalidate(ctx context.Context, companyID string) error
}

type NoopBatchSnapshotCache struct{}

func (NoopBatchSnapshotCache) Get(_ context.Context, _ string) ([]domain.PurchaseBatch, bool, error) {
	return nil, false, nil
}

func (NoopBatchSnapshotCache) Set(_ context.Context, _ string, _ []domain.PurchaseBatch, _ time.Duration) error {
	return nil
}

func (NoopBatchSnapshotCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
