package layoutrepository

import "context"

// LayoutSection is one dashboard tile section in a user's layout: where it
// sits (tab + sequence), whether it is shown, and how it is sized. Sequence
// is the drag-and-drop ordering within a tab.
type LayoutSection struct {
	SectionName  string `json:"section_name"`
	SectionLabel string `json:"section_label"`
	Tab          string `json:"tab"`
	Sequence     int    `json:"sequence"`
	Visible      bool   `json:"visible"`
	GridColumns  int    `json:"grid_columns"`
	CardSize     string `json:"card_size"`
}

type LayoutRepository interface {
	// GetLayout returns the stored sections for the user, ordered by tab
	// and sequence. An empty slice means the user has no stored layout.
	GetLayout(ctx context.Context, userID string) ([]LayoutSection, error)

	// SaveLayout replaces the user's entire layout atomically. Saving the
	// whole layout at once matches how the UI persists a drag-and-drop
	// reorder.
	SaveLayout(ctx context.Context, userID string, sections []LayoutSection) error
}
