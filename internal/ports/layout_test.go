package ports_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrogh/pulseboard/internal/adapters/layoutrepository"
	"github.com/mkrogh/pulseboard/internal/app"
	e "github.com/mkrogh/pulseboard/internal/errors"
	"github.com/mkrogh/pulseboard/internal/ports"
)

func TestMakeGetLayoutHandler(t *testing.T) {
	makeHandler := func(getLayout app.GetLayout) http.HandlerFunc {
		return ports.MakeGetLayoutHandler(
			getLayout,
			testOrigins(t),
			testLogger,
			noopMiddleware,
		)
	}

	makeRequest := func(userID string) *http.Request {
		req := httptest.NewRequest("GET", "/v1/layout/"+userID, nil)
		req.SetPathValue("userID", userID)
		return req
	}

	t.Run("returns sections", func(t *testing.T) {
		handler := makeHandler(func(ctx context.Context, userID string) ([]layoutrepository.LayoutSection, error) {
			require.Equal(t, "user-1", userID)
			return []layoutrepository.LayoutSection{
				{SectionName: "sales_kpis", SectionLabel: "Sales KPIs", Tab: "sales", Sequence: 0, Visible: true, GridColumns: 4, CardSize: "small"},
			}, nil
		})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, makeRequest("user-1"))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Result().Header.Get("Content-Type"))
		require.Contains(t, w.Body.String(), `"success":true`)
		require.Contains(t, w.Body.String(), `"sales_kpis"`)
	})

	t.Run("missing user id", func(t *testing.T) {
		handler := makeHandler(func(ctx context.Context, userID string) ([]layoutrepository.LayoutSection, error) {
			return nil, e.APIClientError
		})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, makeRequest(""))

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMakeSaveLayoutHandler(t *testing.T) {
	makeHandler := func(saveLayout app.SaveLayout) http.HandlerFunc {
		return ports.MakeSaveLayoutHandler(
			saveLayout,
			testOrigins(t),
			testLogger,
			noopMiddleware,
		)
	}

	makeRequest := func(userID string, body string) *http.Request {
		req := httptest.NewRequest("PUT", "/v1/layout/"+userID, strings.NewReader(body))
		req.SetPathValue("userID", userID)
		return req
	}

	t.Run("saves sections", func(t *testing.T) {
		var gotSections []layoutrepository.LayoutSection
		handler := makeHandler(func(ctx context.Context, userID string, sections []layoutrepository.LayoutSection) error {
			require.Equal(t, "user-1", userID)
			gotSections = sections
			return nil
		})

		body := `{"sections":[{"section_name":"sales_kpis","section_label":"Sales KPIs","tab":"sales","sequence":0,"visible":true,"grid_columns":4,"card_size":"small"}]}`
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, makeRequest("user-1", body))

		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"success":true}`, w.Body.String())
		require.Len(t, gotSections, 1)
		require.Equal(t, "sales_kpis", gotSections[0].SectionName)
	})

	t.Run("invalid layout", func(t *testing.T) {
		handler := makeHandler(func(ctx context.Context, userID string, sections []layoutrepository.LayoutSection) error {
			return e.APIClientError
		})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, makeRequest("user-1", `{"sections":[]}`))

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := makeHandler(func(ctx context.Context, userID string, sections []layoutrepository.LayoutSection) error {
			t.Fatal("app should not be called")
			return nil
		})

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, makeRequest("user-1", `{"sections":`))

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
