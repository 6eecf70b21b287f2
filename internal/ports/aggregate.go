package ports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	"github.com/mkrogh/pulseboard/internal/app"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/logging"
	"github.com/mkrogh/pulseboard/internal/ratelimiting"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

const filterDateFormat = "2006-01-02"

// parseAggregateFilters builds the filter set from the request query. Only
// the documented filter parameters are forwarded; anything else is rejected
// so that arbitrary query strings cannot fragment the cache key space.
func parseAggregateFilters(r *http.Request) (aggcache.Filters, error) {
	query := r.URL.Query()
	filters := aggcache.Filters{}

	for name, values := range query {
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: repeated filter %q", e.APIClientError, name)
		}
		value := values[0]

		switch name {
		case "start_date", "end_date":
			if _, err := time.Parse(filterDateFormat, value); err != nil {
				return nil, fmt.Errorf("%w: invalid %s %q", e.APIClientError, name, value)
			}
			filters[name] = value
		case "entity_id":
			entityID, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid entity_id %q", e.APIClientError, value)
			}
			filters[name] = entityID
		case "group_by":
			filters[name] = value
		default:
			return nil, fmt.Errorf("%w: unknown filter %q", e.APIClientError, name)
		}
	}

	return filters, nil
}

func MakeGetAggregateHandler(
	getAggregate app.GetAggregate,
	getLastFetched app.GetLastFetched,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	ipLimiter, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(8),
		ratelimiting.BurstSize(480),
	)
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		ipLimiter,
		ratelimiting.IPKeyFunc,
	)
	userIDLimiter, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(2),
		ratelimiting.BurstSize(120),
	)
	userIDRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		// NOTE: Rate limiting based on user controlled value
		userIDLimiter,
		ratelimiting.UserIDKeyFunc,
	)

	makeOnLimitExceeded := func(rateLimiter ratelimiting.RequestRateLimiter) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			logger.Info("Rate limit exceeded", "key", rateLimiter.KeyFor(r))

			writeErrorResponse(ctx, w, e.RatelimitExceededError)
		}
	}

	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("aggregate"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, makeOnLimitExceeded(ipRateLimiter)),
		NewRateLimitMiddleware(userIDRateLimiter, makeOnLimitExceeded(userIDRateLimiter)),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		endpoint := r.PathValue("endpoint")

		userID := r.Header.Get("X-User-Id")
		ctx = reporting.SetUserIDInContext(ctx, userID)
		if userID == "" {
			userID = "<missing>"
		}
		ctx = logging.AddMetaToContext(ctx,
			slog.String("userId", userID),
			slog.String("endpoint", endpoint),
		)
		ctx = reporting.AddExtrasToContext(ctx,
			map[string]string{
				"endpoint": endpoint,
			},
		)

		filters, err := parseAggregateFilters(r)
		if err != nil {
			writeErrorResponse(ctx, w, err)
			return
		}

		payload, err := getAggregate(ctx, endpoint, filters)
		if err != nil {
			// NOTE: GetAggregate implementations handle their own error reporting
			writeErrorResponse(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if fetchedAt, ok, _ := getLastFetched(endpoint, filters); ok {
			w.Header().Set("X-Fetched-At", fetchedAt.UTC().Format(time.RFC3339))
		}
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}

	return middleware(handler)
}
