package ports

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mkrogh/pulseboard/internal/app"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/logging"
	"github.com/mkrogh/pulseboard/internal/ratelimiting"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

func MakeRefreshHandler(
	refreshDashboard app.RefreshDashboard,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// Refreshes fan out to the ERP on the next read, so they get a much
	// tighter budget than plain reads.
	ipLimiter, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(1),
		ratelimiting.BurstSize(20),
	)
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		ipLimiter,
		ratelimiting.IPKeyFunc,
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
		reporting.NewAddMetaMiddleware("refresh"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, makeOnLimitExceeded(ipRateLimiter)),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := r.Header.Get("X-User-Id")
		ctx = reporting.SetUserIDInContext(ctx, userID)
		if userID == "" {
			userID = "<missing>"
		}
		ctx = logging.AddMetaToContext(ctx, slog.String("userId", userID))

		request := struct {
			Endpoint string `json:"endpoint"`
		}{}

		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to read request body: %w", err))
			writeErrorResponse(ctx, w, e.APIClientError)
			return
		}
		// An empty body is a full refresh
		if len(body) > 0 {
			if err := json.Unmarshal(body, &request); err != nil {
				writeErrorResponse(ctx, w, fmt.Errorf("%w: %w", e.APIClientError, err))
				return
			}
		}

		ctx = logging.AddMetaToContext(ctx, slog.String("endpoint", request.Endpoint))

		if err := refreshDashboard(ctx, request.Endpoint); err != nil {
			writeErrorResponse(ctx, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}

	return middleware(handler)
}
