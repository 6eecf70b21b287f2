package kpiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	"github.com/mkrogh/pulseboard/internal/config"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/logging"
	"github.com/mkrogh/pulseboard/internal/reporting"
)

const userAgent = "pulseboard"

const sessionTTL = 30 * time.Minute

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type erpAPIImpl struct {
	httpClient HttpClient
	baseURL    string
	apiKey     string
	sessions   *sessionCache
}

// rpcEnvelope is the ERP's JSON-RPC style response wrapper. Exactly one of
// Result and Error is set.
type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
}

func NewERPAPI(httpClient HttpClient, baseURL string, apiKey string) AggregateProvider {
	api := &erpAPIImpl{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
	api.sessions = newSessionCache(sessionTTL, api.authenticate)
	return api
}

func NewERPAPIOrMock(conf config.Config, httpClient HttpClient) (AggregateProvider, error) {
	if conf.ERPBaseURL() != "" && conf.ERPAPIKey() != "" {
		return NewERPAPI(httpClient, conf.ERPBaseURL(), conf.ERPAPIKey()), nil
	}
	if conf.IsDevelopment() {
		return &mockedERPAPI{}, nil
	}
	return nil, fmt.Errorf("Missing ERP base URL or API key in non-development environment")
}

func (api *erpAPIImpl) FetchAggregate(ctx context.Context, endpoint string, filters aggcache.Filters) (json.RawMessage, error) {
	result, retryable, err := api.fetchAggregateOnce(ctx, endpoint, filters)
	if retryable {
		// Session expired server-side: authenticate again and retry once.
		api.sessions.drop()
		result, _, err = api.fetchAggregateOnce(ctx, endpoint, filters)
	}
	return result, err
}

func (api *erpAPIImpl) fetchAggregateOnce(ctx context.Context, endpoint string, filters aggcache.Filters) (result json.RawMessage, retryable bool, err error) {
	logger := logging.FromContext(ctx)

	token, err := api.sessions.token(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to authenticate: %w", err)
	}

	params := filters
	if params == nil {
		params = aggcache.Filters{}
	}
	body, err := json.Marshal(map[string]any{"params": params})
	if err != nil {
		err := fmt.Errorf("failed to marshal request body: %w", err)
		reporting.Report(ctx, err)
		return nil, false, err
	}

	url := fmt.Sprintf("%s/pulse/aggregate/%s", api.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return nil, false, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Session-Token", token)

	start := time.Now()
	resp, err := api.httpClient.Do(req)
	if err != nil {
		err := fmt.Errorf("%w: failed to send request: %w", e.UpstreamUnavailableError, err)
		logger.Error(err.Error())
		return nil, false, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err := fmt.Errorf("failed to read response body: %w", err)
		reporting.Report(ctx, err)
		return nil, false, err
	}
	logger.Info("aggregate request completed", "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start).String())

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, true, fmt.Errorf("%w: session rejected", e.APIServerError)
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", e.EndpointNotFoundError, endpoint)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, false, fmt.Errorf("%w: aggregation rejected the filters", e.APIClientError)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, e.RatelimitExceededError
	case resp.StatusCode >= 500:
		return nil, false, fmt.Errorf("%w: status %d", e.UpstreamUnavailableError, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		err := fmt.Errorf("%w: unexpected status %d", e.APIServerError, resp.StatusCode)
		reporting.Report(ctx, err)
		return nil, false, err
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		err := fmt.Errorf("%w: failed to parse response envelope: %w", e.APIServerError, err)
		reporting.Report(ctx, err)
		return nil, false, err
	}
	if envelope.Error != nil {
		return nil, false, fmt.Errorf("%w: %s", e.APIServerError, envelope.Error.Message)
	}

	return envelope.Result, false, nil
}

func (api *erpAPIImpl) authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]any{"params": map[string]string{"api_key": api.apiKey}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session request: %w", err)
	}

	url := fmt.Sprintf("%s/pulse/session", api.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send session request: %w", e.UpstreamUnavailableError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: session request returned status %d", e.APIServerError, resp.StatusCode)
	}

	var envelope struct {
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
		Error *rpcError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("%w: failed to parse session response: %w", e.APIServerError, err)
	}
	if envelope.Error != nil {
		return "", fmt.Errorf("%w: %s", e.APIServerError, envelope.Error.Message)
	}
	if envelope.Result.Token == "" {
		return "", fmt.Errorf("%w: session response missing token", e.APIServerError)
	}

	return envelope.Result.Token, nil
}

type mockedERPAPI struct{}

func (api *mockedERPAPI) FetchAggregate(ctx context.Context, endpoint string, filters aggcache.Filters) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"endpoint":%q,"total":0,"count":0}`, endpoint)), nil
}
