package errors

import "errors"

var (
	APIServerError           = errors.New("Server error")
	APIClientError           = errors.New("Client error")
	RatelimitExceededError   = errors.New("Ratelimit exceeded")
	EndpointNotFoundError    = errors.New("Unknown aggregate endpoint")
	UpstreamUnavailableError = errors.New("Aggregation source unavailable")
)
