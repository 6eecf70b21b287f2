package kpiprovider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrogh/pulseboard/internal/aggcache"
	e "github.com/mkrogh/pulseboard/internal/errors"
)

type mockHttpClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (c *mockHttpClient) Do(req *http.Request) (*http.Response, error) {
	return c.do(req)
}

func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// sessionAwareClient answers /pulse/session with a token and delegates
// aggregate requests to aggregate().
type sessionAwareClient struct {
	t            *testing.T
	sessionCalls int
	token        string
	aggregate    func(req *http.Request) (*http.Response, error)
}

func (c *sessionAwareClient) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "/pulse/session") {
		c.sessionCalls++
		return jsonResponse(200, `{"result":{"token":"`+c.token+`"}}`), nil
	}
	return c.aggregate(req)
}

func TestFetchAggregate(t *testing.T) {
	t.Parallel()

	t.Run("request shaping and payload passthrough", func(t *testing.T) {
		t.Parallel()

		client := &sessionAwareClient{t: t, token: "tok-1"}
		var captured *http.Request
		var capturedBody []byte
		client.aggregate = func(req *http.Request) (*http.Response, error) {
			captured = req
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			capturedBody = body
			return jsonResponse(200, `{"result":{"total":42000,"count":7}}`), nil
		}

		api := NewERPAPI(client, "https://erp.example.com", "api-key")
		payload, err := api.FetchAggregate(context.Background(), "sales_kpis", aggcache.Filters{
			"start_date": "2025-01-01",
			"end_date":   "2025-01-31",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"total":42000,"count":7}`, string(payload))

		require.NotNil(t, captured)
		assert.Equal(t, http.MethodPost, captured.Method)
		assert.Equal(t, "https://erp.example.com/pulse/aggregate/sales_kpis", captured.URL.String())
		assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
		assert.Equal(t, "tok-1", captured.Header.Get("X-Session-Token"))

		var body struct {
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.Unmarshal(capturedBody, &body))
		assert.Equal(t, "2025-01-01", body.Params["start_date"])
		assert.Equal(t, "2025-01-31", body.Params["end_date"])
	})

	t.Run("session token is reused across calls", func(t *testing.T) {
		t.Parallel()

		client := &sessionAwareClient{t: t, token: "tok-1"}
		client.aggregate = func(req *http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"result":{}}`), nil
		}

		api := NewERPAPI(client, "https://erp.example.com", "api-key")
		_, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
		require.NoError(t, err)
		_, err = api.FetchAggregate(context.Background(), "home_summary", nil)
		require.NoError(t, err)

		assert.Equal(t, 1, client.sessionCalls)
	})

	t.Run("rejected session is refreshed and retried once", func(t *testing.T) {
		t.Parallel()

		client := &sessionAwareClient{t: t, token: "tok-1"}
		aggregateCalls := 0
		client.aggregate = func(req *http.Request) (*http.Response, error) {
			aggregateCalls++
			if aggregateCalls == 1 {
				return jsonResponse(401, `{}`), nil
			}
			return jsonResponse(200, `{"result":{"total":1}}`), nil
		}

		api := NewERPAPI(client, "https://erp.example.com", "api-key")
		payload, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"total":1}`, string(payload))
		assert.Equal(t, 2, aggregateCalls)
		assert.Equal(t, 2, client.sessionCalls)
	})

	t.Run("status code mapping", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			statusCode int
			expected   error
		}{
			{statusCode: 404, expected: e.EndpointNotFoundError},
			{statusCode: 400, expected: e.APIClientError},
			{statusCode: 429, expected: e.RatelimitExceededError},
			{statusCode: 500, expected: e.UpstreamUnavailableError},
			{statusCode: 503, expected: e.UpstreamUnavailableError},
		}

		for _, tc := range cases {
			client := &sessionAwareClient{t: t, token: "tok-1"}
			client.aggregate = func(req *http.Request) (*http.Response, error) {
				return jsonResponse(tc.statusCode, `{}`), nil
			}

			api := NewERPAPI(client, "https://erp.example.com", "api-key")
			_, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
			require.ErrorIs(t, err, tc.expected, "status %d", tc.statusCode)
		}
	})

	t.Run("envelope errors surface as server errors", func(t *testing.T) {
		t.Parallel()

		client := &sessionAwareClient{t: t, token: "tok-1"}
		client.aggregate = func(req *http.Request) (*http.Response, error) {
			return jsonResponse(200, `{"error":{"message":"aggregation failed"}}`), nil
		}

		api := NewERPAPI(client, "https://erp.example.com", "api-key")
		_, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
		require.ErrorIs(t, err, e.APIServerError)
		assert.Contains(t, err.Error(), "aggregation failed")
	})

	t.Run("transport failure is retryable upstream error", func(t *testing.T) {
		t.Parallel()

		client := &mockHttpClient{do: func(req *http.Request) (*http.Response, error) {
			if strings.HasSuffix(req.URL.Path, "/pulse/session") {
				return jsonResponse(200, `{"result":{"token":"tok"}}`), nil
			}
			return nil, assert.AnError
		}}

		api := NewERPAPI(client, "https://erp.example.com", "api-key")
		_, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
		require.ErrorIs(t, err, e.UpstreamUnavailableError)
	})
}

func TestMockedERPAPI(t *testing.T) {
	t.Parallel()

	api := &mockedERPAPI{}
	payload, err := api.FetchAggregate(context.Background(), "sales_kpis", nil)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "sales_kpis", decoded["endpoint"])
}
