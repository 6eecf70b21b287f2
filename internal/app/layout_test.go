package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrogh/pulseboard/internal/adapters/layoutrepository"
	e "github.com/mkrogh/pulseboard/internal/errors"
)

func validSection() layoutrepository.LayoutSection {
	return layoutrepository.LayoutSection{
		SectionName:  "sales_kpis",
		SectionLabel: "Sales KPIs",
		Tab:          "sales",
		Sequence:     0,
		Visible:      true,
		GridColumns:  4,
		CardSize:     "small",
	}
}

func TestGetLayout(t *testing.T) {
	t.Parallel()

	t.Run("falls back to default layout", func(t *testing.T) {
		t.Parallel()

		getLayout := BuildGetLayout(layoutrepository.NewInMemory())

		sections, err := getLayout(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, DefaultLayout(), sections)
	})

	t.Run("returns stored layout when present", func(t *testing.T) {
		t.Parallel()

		repo := layoutrepository.NewInMemory()
		ctx := context.Background()
		require.NoError(t, repo.SaveLayout(ctx, "user-1", []layoutrepository.LayoutSection{validSection()}))

		getLayout := BuildGetLayout(repo)
		sections, err := getLayout(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "sales_kpis", sections[0].SectionName)
	})

	t.Run("missing user id", func(t *testing.T) {
		t.Parallel()

		getLayout := BuildGetLayout(layoutrepository.NewInMemory())
		_, err := getLayout(context.Background(), "")
		require.ErrorIs(t, err, e.APIClientError)
	})
}

func TestSaveLayout(t *testing.T) {
	t.Parallel()

	t.Run("valid layout round-trips", func(t *testing.T) {
		t.Parallel()

		repo := layoutrepository.NewInMemory()
		saveLayout := BuildSaveLayout(repo)
		getLayout := BuildGetLayout(repo)
		ctx := context.Background()

		require.NoError(t, saveLayout(ctx, "user-1", []layoutrepository.LayoutSection{validSection()}))

		sections, err := getLayout(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, validSection(), sections[0])
	})

	t.Run("default layout passes validation", func(t *testing.T) {
		t.Parallel()

		saveLayout := BuildSaveLayout(layoutrepository.NewInMemory())
		require.NoError(t, saveLayout(context.Background(), "user-1", DefaultLayout()))
	})

	t.Run("rejected layouts", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			name   string
			mutate func(section *layoutrepository.LayoutSection)
		}{
			{name: "missing section name", mutate: func(s *layoutrepository.LayoutSection) { s.SectionName = "" }},
			{name: "unknown tab", mutate: func(s *layoutrepository.LayoutSection) { s.Tab = "finance" }},
			{name: "unknown card size", mutate: func(s *layoutrepository.LayoutSection) { s.CardSize = "huge" }},
			{name: "grid columns too small", mutate: func(s *layoutrepository.LayoutSection) { s.GridColumns = 0 }},
			{name: "grid columns too large", mutate: func(s *layoutrepository.LayoutSection) { s.GridColumns = 5 }},
			{name: "negative sequence", mutate: func(s *layoutrepository.LayoutSection) { s.Sequence = -1 }},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				section := validSection()
				tc.mutate(&section)

				saveLayout := BuildSaveLayout(layoutrepository.NewInMemory())
				err := saveLayout(context.Background(), "user-1", []layoutrepository.LayoutSection{section})
				require.ErrorIs(t, err, e.APIClientError)
			})
		}
	})

	t.Run("duplicate sections rejected", func(t *testing.T) {
		t.Parallel()

		saveLayout := BuildSaveLayout(layoutrepository.NewInMemory())
		err := saveLayout(context.Background(), "user-1", []layoutrepository.LayoutSection{validSection(), validSection()})
		require.ErrorIs(t, err, e.APIClientError)
	})
}
