package kpiprovider

import (
	"context"
	"encoding/json"

	"github.com/mkrogh/pulseboard/internal/aggcache"
)

// AggregateProvider runs a server-side aggregation and returns the
// pre-aggregated payload as-is. The payload is opaque to callers; pulseboard
// never interprets its contents beyond passing them through.
type AggregateProvider interface {
	// Raises errors.EndpointNotFoundError if the ERP does not expose the endpoint.
	//
	// Raises errors.UpstreamUnavailableError for failures believed to be
	// intermittent. The call may be retried later.
	FetchAggregate(ctx context.Context, endpoint string, filters aggcache.Filters) (json.RawMessage, error)
}
