package ports

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mkrogh/pulseboard/internal/adapters/layoutrepository"
	"github.com/mkrogh/pulseboard/internal/app"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/logging"
	"github.com/mkrogh/pulseboard/internal/ratelimiting"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

type layoutResponse struct {
	Success  bool                             `json:"success"`
	Sections []layoutrepository.LayoutSection `json:"sections"`
}

func makeLayoutMiddleware(
	port string,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) func(http.HandlerFunc) http.HandlerFunc {
	ipLimiter, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(4),
		ratelimiting.BurstSize(80),
	)
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		ipLimiter,
		ratelimiting.IPKeyFunc,
	)

	onLimitExceeded := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		logger.Info("Rate limit exceeded", "key", ipRateLimiter.KeyFor(r))

		writeErrorResponse(ctx, w, e.RatelimitExceededError)
	}

	return ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware(port),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, onLimitExceeded),
	)
}

func MakeGetLayoutHandler(
	getLayout app.GetLayout,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := makeLayoutMiddleware("getlayout", allowedOrigins, rootLogger, sentryMiddleware)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := r.PathValue("userID")

		ctx = reporting.SetUserIDInContext(ctx, userID)
		ctx = logging.AddMetaToContext(ctx, slog.String("userId", userID))

		sections, err := getLayout(ctx, userID)
		if err != nil {
			writeErrorResponse(ctx, w, err)
			return
		}

		data, err := json.Marshal(layoutResponse{Success: true, Sections: sections})
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to marshal layout response: %w", err))
			writeErrorResponse(ctx, w, e.APIServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}

	return middleware(handler)
}

func MakeSaveLayoutHandler(
	saveLayout app.SaveLayout,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := makeLayoutMiddleware("savelayout", allowedOrigins, rootLogger, sentryMiddleware)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := r.PathValue("userID")

		ctx = reporting.SetUserIDInContext(ctx, userID)
		ctx = logging.AddMetaToContext(ctx, slog.String("userId", userID))

		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to read request body: %w", err))
			writeErrorResponse(ctx, w, e.APIClientError)
			return
		}

		request := struct {
			Sections []layoutrepository.LayoutSection `json:"sections"`
		}{}
		if err := json.Unmarshal(body, &request); err != nil {
			writeErrorResponse(ctx, w, fmt.Errorf("%w: %w", e.APIClientError, err))
			return
		}

		if err := saveLayout(ctx, userID, request.Sections); err != nil {
			writeErrorResponse(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	}

	return middleware(handler)
}
