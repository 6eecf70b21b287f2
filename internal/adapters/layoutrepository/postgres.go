package layoutrepository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresLayoutRepository struct {
	db         *sqlx.DB
	schemaName string
}

func NewPostgres(db *sqlx.DB, schemaName string) LayoutRepository {
	return &postgresLayoutRepository{
		db:         db,
		schemaName: schemaName,
	}
}

type layoutSectionRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	SectionName  string `db:"section_name"`
	SectionLabel string `db:"section_label"`
	Tab          string `db:"tab"`
	Sequence     int    `db:"sequence"`
	Visible      bool   `db:"visible"`
	GridColumns  int    `db:"grid_columns"`
	CardSize     string `db:"card_size"`
}

func (r *postgresLayoutRepository) table() string {
	return fmt.Sprintf("%s.layout_sections", pq.QuoteIdentifier(r.schemaName))
}

func (r *postgresLayoutRepository) GetLayout(ctx context.Context, userID string) ([]LayoutSection, error) {
	query := fmt.Sprintf(`
		SELECT section_name, section_label, tab, sequence, visible, grid_columns, card_size
		FROM %s
		WHERE user_id = $1
		ORDER BY tab, sequence`,
		r.table(),
	)

	rows := []layoutSectionRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get layout: %w", err)
	}

	sections := make([]LayoutSection, 0, len(rows))
	for _, row := range rows {
		sections = append(sections, LayoutSection{
			SectionName:  row.SectionName,
			SectionLabel: row.SectionLabel,
			Tab:          row.Tab,
			Sequence:     row.Sequence,
			Visible:      row.Visible,
			GridColumns:  row.GridColumns,
			CardSize:     row.CardSize,
		})
	}
	return sections, nil
}

func (r *postgresLayoutRepository) SaveLayout(ctx context.Context, userID string, sections []LayoutSection) error {
	txx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op if the transaction was committed
		_ = txx.Rollback()
	}()

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", r.table())
	if _, err := txx.ExecContext(ctx, deleteQuery, userID); err != nil {
		return fmt.Errorf("failed to clear existing layout: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, section_name, section_label, tab, sequence, visible, grid_columns, card_size)
		VALUES (:id, :user_id, :section_name, :section_label, :tab, :sequence, :visible, :grid_columns, :card_size)`,
		r.table(),
	)

	for _, section := range sections {
		row := layoutSectionRow{
			ID:           uuid.New().String(),
			UserID:       userID,
			SectionName:  section.SectionName,
			SectionLabel: section.SectionLabel,
			Tab:          section.Tab,
			Sequence:     section.Sequence,
			Visible:      section.Visible,
			GridColumns:  section.GridColumns,
			CardSize:     section.CardSize,
		}
		if _, err := txx.NamedExecContext(ctx, insertQuery, row); err != nil {
			return fmt.Errorf("failed to insert layout section %q: %w", section.SectionName, err)
		}
	}

	if err := txx.Commit(); err != nil {
		return fmt.Errorf("failed to commit layout: %w", err)
	}

	return nil
}
