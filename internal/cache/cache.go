package cache

import (
	"context"
	"time"

	"ventaslink/backend/internal/domain"
)

// StatsCache holds short-lived KPI aggregates so dashboards that poll on
// every filter change do not re-scan the sales collection each time.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.SalesStats, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesStats, ttl time.Duration) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.SalesStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.SalesStats, _ time.Duration) error {
	return nil
}
