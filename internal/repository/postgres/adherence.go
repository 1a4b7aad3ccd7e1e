package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/repository"
)

type adherenceRepository struct {
	db *sql.DB
}

// NewAdherenceRepository creates a new adherence event repository
func NewAdherenceRepository(db *sql.DB) repository.AdherenceRepository {
	return &adherenceRepository{db: db}
}

func (r *adherenceRepository) Append(ctx context.Context, event *models.AdherenceEvent) error {
	query := `
		INSERT INTO adherence_events (id, plan_id, kind, occurred_at, dosage, reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.PlanID,
		event.Kind,
		event.Timestamp,
		nullString(event.Dosage),
		nullString(event.Reason),
		nullString(event.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to append adherence event: %w", err)
	}

	return nil
}

func (r *adherenceRepository) List(ctx context.Context, filters repository.AdherenceFilters) ([]*models.AdherenceEvent, error) {
	var (
		where []string
		args  []any
	)
	if filters.PlanID != "" {
		args = append(args, filters.PlanID)
		where = append(where, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if filters.Since != nil {
		args = append(args, *filters.Since)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if filters.Until != nil {
		args = append(args, *filters.Until)
		where = append(where, fmt.Sprintf("occurred_at < $%d", len(args)))
	}

	query := `
		SELECT id, plan_id, kind, occurred_at, dosage, reason, notes
		FROM adherence_events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adherence events: %w", err)
	}
	defer rows.Close()

	var events []*models.AdherenceEvent
	for rows.Next() {
		var (
			e                     models.AdherenceEvent
			dosage, reason, notes sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.PlanID,
			&e.Kind,
			&e.Timestamp,
			&dosage,
			&reason,
			&notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan adherence event: %w", err)
		}
		e.Dosage, e.Reason, e.Notes = dosage.String, reason.String, notes.String
		events = append(events, &e)
	}

	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
