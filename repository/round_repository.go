package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

type roundRepository struct {
	q Queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) interfaces.RoundRepository {
	return &roundRepository{q: db.Pool}
}

func newRoundRepositoryWithTx(tx Queryable) interfaces.RoundRepository {
	return &roundRepository{q: tx}
}

// Create records a drawn round. Re-recording the same round keeps the first draw.
func (r *roundRepository) Create(ctx context.Context, round *entities.Round) error {
	query := `
		INSERT INTO rounds (round_id, room_id, outcome, bonus_set, opened_at, drawn_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (round_id) DO NOTHING`

	bonus := round.BonusSet
	if bonus == nil {
		bonus = entities.BonusSet{}
	}

	_, err := r.q.Exec(ctx, query,
		round.ID,
		round.RoomID,
		round.Outcome,
		bonus,
		round.OpenedAt,
		round.DrawnAt,
		round.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

func (r *roundRepository) MarkClosed(ctx context.Context, roundID string, closedAt time.Time) error {
	query := `UPDATE rounds SET closed_at = $2 WHERE round_id = $1`

	if _, err := r.q.Exec(ctx, query, roundID, closedAt); err != nil {
		return fmt.Errorf("failed to mark round closed: %w", err)
	}
	return nil
}

func (r *roundRepository) GetByID(ctx context.Context, roundID string) (*entities.Round, error) {
	query := `
		SELECT round_id, room_id, outcome, bonus_set, opened_at, drawn_at, closed_at
		FROM rounds
		WHERE round_id = $1`

	var round entities.Round
	err := r.q.QueryRow(ctx, query, roundID).Scan(
		&round.ID,
		&round.RoomID,
		&round.Outcome,
		&round.BonusSet,
		&round.OpenedAt,
		&round.DrawnAt,
		&round.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}

	// status is not stored; derive the furthest phase the row proves
	switch {
	case round.ClosedAt != nil:
		round.Status = entities.RoundClosed
	case round.Outcome != nil:
		round.Status = entities.RoundCalculating
	default:
		round.Status = entities.RoundOpening
	}
	return &round, nil
}

func (r *roundRepository) RecentOutcomes(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	query := `
		SELECT round_id, room_id, outcome, bonus_set, COALESCE(closed_at, drawn_at, opened_at)
		FROM rounds
		WHERE outcome IS NOT NULL
		ORDER BY opened_at DESC
		LIMIT $1`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent outcomes: %w", err)
	}
	defer rows.Close()

	var entries []*entities.HistoryEntry
	for rows.Next() {
		var e entities.HistoryEntry
		if err := rows.Scan(&e.RoundID, &e.RoomID, &e.Outcome, &e.BonusSet, &e.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return entries, nil
}
