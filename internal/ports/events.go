package ports

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	"github.com/mkrogh/pulseboard/internal/logging"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

// MakeEventsHandler streams a server-sent event every time a fetch settles in
// the cache. Events carry no payload; clients re-read the aggregates they
// care about through the regular endpoints.
func MakeEventsHandler(
	aggregateCache *aggcache.Cache[json.RawMessage],
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("events"),
		BuildCORSMiddleware(allowedOrigins),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeErrorResponse(ctx, w, http.ErrNotSupported)
			return
		}

		// Coalesce bursts of settles into a single pending notification.
		// The subscriber callback runs on the cache's fetch goroutine and
		// must never block.
		settled := make(chan struct{}, 1)
		unsubscribe := aggregateCache.Subscribe(func() {
			select {
			case settled <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		w.Write([]byte("event: connected\ndata: {}\n\n"))
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Event stream closed")
				return
			case <-settled:
				if _, err := w.Write([]byte("event: settled\ndata: {}\n\n")); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}

	return middleware(handler)
}
