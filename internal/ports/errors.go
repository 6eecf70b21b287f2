package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Cause   string `json:"cause"`
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, e.EndpointNotFoundError):
		return http.StatusNotFound, "not found"
	case errors.Is(err, aggcache.ErrMalformedFilters):
		return http.StatusBadRequest, "malformed filters"
	case errors.Is(err, e.APIClientError):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, e.RatelimitExceededError):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, e.UpstreamUnavailableError):
		return http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeErrorResponse(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode, cause := classifyError(err)

	data, marshalErr := json.Marshal(errorResponse{Success: false, Cause: cause})
	if marshalErr != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal error response: %w", marshalErr))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}
