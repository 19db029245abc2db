// Package cache holds the reorder report cache. The report is a pure read
// over product rows, so a short TTL is safe; stale entries only delay a
// suggestion, never corrupt stock.
package cache

import (
	"context"
	"time"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
)

type ReorderReportCache interface {
	Get(ctx context.Context, key string) (*domain.ReorderReport, bool, error)
	Set(ctx context.Context, key string, value *domain.ReorderReport, ttl time.Duration) error
}

type NoopReorderReportCache struct{}

func (NoopReorderReportCache) Get(_ context.Context, _ string) (*domain.ReorderReport, bool, error) {
	return nil, false, nil
}

func (NoopReorderReportCache) Set(_ context.Context, _ string, _ *domain.ReorderReport, _ time.Duration) error {
	return nil
}
