package app

import (
	"context"
	"fmt"

	"github.com/mkrogh/pulseboard/internal/adapters/layoutrepository"
	e "github.com/mkrogh/pulseboard/internal/errors"
)

var validTabs = map[string]struct{}{
	"home":       {},
	"sales":      {},
	"operations": {},
}

var validCardSizes = map[string]struct{}{
	"small":  {},
	"medium": {},
	"large":  {},
}

// DefaultLayout is what a user sees before they have rearranged anything.
func DefaultLayout() []layoutrepository.LayoutSection {
	return []layoutrepository.LayoutSection{
		{SectionName: "home_summary", SectionLabel: "Overview", Tab: "home", Sequence: 0, Visible: true, GridColumns: 4, CardSize: "small"},
		{SectionName: "my_work_tasks", SectionLabel: "My Tasks", Tab: "home", Sequence: 1, Visible: true, GridColumns: 2, CardSize: "medium"},
		{SectionName: "agenda_events", SectionLabel: "Agenda", Tab: "home", Sequence: 2, Visible: true, GridColumns: 2, CardSize: "medium"},
		{SectionName: "sales_kpis", SectionLabel: "Sales KPIs", Tab: "sales", Sequence: 0, Visible: true, GridColumns: 4, CardSize: "small"},
		{SectionName: "sales_dashboard", SectionLabel: "Sales Charts", Tab: "sales", Sequence: 1, Visible: true, GridColumns: 2, CardSize: "large"},
		{SectionName: "event_calendar", SectionLabel: "Event Calendar", Tab: "operations", Sequence: 0, Visible: true, GridColumns: 1, CardSize: "large"},
	}
}

type GetLayout func(ctx context.Context, userID string) ([]layoutrepository.LayoutSection, error)

func BuildGetLayout(repo layoutrepository.LayoutRepository) GetLayout {
	return func(ctx context.Context, userID string) ([]layoutrepository.LayoutSection, error) {
		if userID == "" {
			return nil, fmt.Errorf("%w: missing user id", e.APIClientError)
		}

		sections, err := repo.GetLayout(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get layout: %w", err)
		}

		if len(sections) == 0 {
			return DefaultLayout(), nil
		}
		return sections, nil
	}
}

type SaveLayout func(ctx context.Context, userID string, sections []layoutrepository.LayoutSection) error

func BuildSaveLayout(repo layoutrepository.LayoutRepository) SaveLayout {
	return func(ctx context.Context, userID string, sections []layoutrepository.LayoutSection) error {
		if userID == "" {
			return fmt.Errorf("%w: missing user id", e.APIClientError)
		}
		if err := validateLayout(sections); err != nil {
			return err
		}

		if err := repo.SaveLayout(ctx, userID, sections); err != nil {
			return fmt.Errorf("failed to save layout: %w", err)
		}
		return nil
	}
}

func validateLayout(sections []layoutrepository.LayoutSection) error {
	seen := make(map[string]struct{}, len(sections))
	for _, section := range sections {
		if section.SectionName == "" {
			return fmt.Errorf("%w: section missing name", e.APIClientError)
		}
		if _, duplicate := seen[section.SectionName]; duplicate {
			return fmt.Errorf("%w: duplicate section %q", e.APIClientError, section.SectionName)
		}
		seen[section.SectionName] = struct{}{}

		if _, ok := validTabs[section.Tab]; !ok {
			return fmt.Errorf("%w: section %q has unknown tab %q", e.APIClientError, section.SectionName, section.Tab)
		}
		if _, ok := validCardSizes[section.CardSize]; !ok {
			return fmt.Errorf("%w: section %q has unknown card size %q", e.APIClientError, section.SectionName, section.CardSize)
		}
		if section.GridColumns < 1 || section.GridColumns > 4 {
			return fmt.Errorf("%w: section %q has invalid grid columns %d", e.APIClientError, section.SectionName, section.GridColumns)
		}
		if section.Sequence < 0 {
			return fmt.Errorf("%w: section %q has negative sequence", e.APIClientError, section.SectionName)
		}
	}
	return nil
}
