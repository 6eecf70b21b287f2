package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/logging"
)

// The aggregation endpoints exposed by the ERP. Anything else 404s here
// instead of round-tripping to the backend.
var knownEndpoints = map[string]struct{}{
	"home_summary":    {},
	"sales_kpis":      {},
	"sales_dashboard": {},
	"agenda_events":   {},
	"event_calendar":  {},
	"my_work_tasks":   {},
}

func KnownEndpoint(endpoint string) bool {
	_, ok := knownEndpoints[endpoint]
	return ok
}

type GetAggregate func(ctx context.Context, endpoint string, filters aggcache.Filters) (json.RawMessage, error)

func BuildGetAggregate(aggregateCache *aggcache.Cache[json.RawMessage]) GetAggregate {
	return func(ctx context.Context, endpoint string, filters aggcache.Filters) (json.RawMessage, error) {
		if !KnownEndpoint(endpoint) {
			return nil, fmt.Errorf("%w: %s", e.EndpointNotFoundError, endpoint)
		}

		payload, err := aggregateCache.Get(ctx, endpoint, filters)
		if err != nil {
			// NOTE: AggregateProvider implementations handle their own error reporting
			return nil, fmt.Errorf("failed to get aggregate: %w", err)
		}

		return payload, nil
	}
}

// GetLastFetched reports when the cached aggregate for (endpoint, filters)
// was last fetched. ok is false when nothing trusted is cached.
type GetLastFetched func(endpoint string, filters aggcache.Filters) (time.Time, bool, error)

func BuildGetLastFetched(aggregateCache *aggcache.Cache[json.RawMessage]) GetLastFetched {
	return aggregateCache.LastFetched
}

// RefreshDashboard clears cached aggregates so the next read refetches.
// An empty endpoint clears everything (user-triggered full refresh).
type RefreshDashboard func(ctx context.Context, endpoint string) error

func BuildRefreshDashboard(aggregateCache *aggcache.Cache[json.RawMessage]) RefreshDashboard {
	return func(ctx context.Context, endpoint string) error {
		logger := logging.FromContext(ctx)

		if endpoint == "" {
			aggregateCache.Invalidate()
			logger.Info("Cleared all cached aggregates")
			return nil
		}

		if !KnownEndpoint(endpoint) {
			return fmt.Errorf("%w: %s", e.EndpointNotFoundError, endpoint)
		}

		aggregateCache.InvalidateEndpoint(endpoint)
		logger.Info("Cleared cached aggregates", "endpoint", endpoint)
		return nil
	}
}
