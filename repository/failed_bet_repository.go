package repository

import (
	"context"
	"fmt"

	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"
)

type failedBetRepository struct {
	q Queryable
}

// NewFailedBetRepository creates a new failed bet repository
func NewFailedBetRepository(db *database.DB) interfaces.FailedBetRepository {
	return &failedBetRepository{q: db.Pool}
}

func (r *failedBetRepository) Record(ctx context.Context, failed *entities.FailedBet) error {
	query := `
		INSERT INTO failed_bets (player_id, operator_id, room_id, round_id, reason, request, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	request := failed.Request
	if request == nil {
		request = map[string]any{}
	}

	err := r.q.QueryRow(ctx, query,
		failed.PlayerID,
		failed.OperatorID,
		failed.RoomID,
		failed.RoundID,
		failed.Reason,
		request,
		failed.CreatedAt,
	).Scan(&failed.ID)
	if err != nil {
		return fmt.Errorf("failed to record failed bet: %w", err)
	}
	return nil
}
