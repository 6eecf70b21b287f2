package aggcache

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cacheMetricsCollection struct {
	hitCount       metric.Int64Counter
	missCount      metric.Int64Counter
	coalescedCount metric.Int64Counter
}

var metrics cacheMetricsCollection

func init() {
	const name = "pulseboard/aggcache"
	meter := otel.Meter(name)

	hitCount, err := meter.Int64Counter(
		"aggcache/hit_count",
		metric.WithDescription("Requests served from a ready cache entry"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create hit count metric: %w", err))
	}

	missCount, err := meter.Int64Counter(
		"aggcache/miss_count",
		metric.WithDescription("Requests that started a new fetch"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create miss count metric: %w", err))
	}

	coalescedCount, err := meter.Int64Counter(
		"aggcache/coalesced_count",
		metric.WithDescription("Requests that attached to an in-flight fetch"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create coalesced count metric: %w", err))
	}

	metrics = cacheMetricsCollection{
		hitCount:       hitCount,
		missCount:      missCount,
		coalescedCount: coalescedCount,
	}
}

func endpointAttribute(endpoint string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("endpoint", endpoint))
}
