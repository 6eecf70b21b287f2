package layoutrepository

import (
	"context"
	"slices"
	"sync"
)

// inMemoryLayoutRepository backs the layout endpoints in development and in
// tests, where no database is configured.
type inMemoryLayoutRepository struct {
	mu       sync.Mutex
	layoutBy map[string][]LayoutSection
}

func NewInMemory() LayoutRepository {
	return &inMemoryLayoutRepository{
		layoutBy: make(map[string][]LayoutSection),
	}
}

func (r *inMemoryLayoutRepository) GetLayout(ctx context.Context, userID string) ([]LayoutSection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sections := slices.Clone(r.layoutBy[userID])
	slices.SortStableFunc(sections, func(a, b LayoutSection) int {
		if a.Tab != b.Tab {
			if a.Tab < b.Tab {
				return -1
			}
			return 1
		}
		return a.Sequence - b.Sequence
	})
	return sections, nil
}

func (r *inMemoryLayoutRepository) SaveLayout(ctx context.Context, userID string, sections []LayoutSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.layoutBy[userID] = slices.Clone(sections)
	return nil
}
