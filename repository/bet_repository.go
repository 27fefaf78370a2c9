package repository

import (
	"context"
	"fmt"

	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
)

type betRepository struct {
	q Queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) interfaces.BetRepository {
	return &betRepository{q: db.Pool}
}

func newBetRepositoryWithTx(tx Queryable) interfaces.BetRepository {
	return &betRepository{q: tx}
}

func (r *betRepository) Create(ctx context.Context, bet *entities.Bet) error {
	query := `
		INSERT INTO bets (bet_id, round_id, room_id, player_id, operator_id, session_ref, game_id, token, ip,
		                  stake_total, selections, debit_txn_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	// Default to PLACED if not specified
	status := bet.Status
	if status == "" {
		status = entities.BetPlaced
	}

	_, err := r.q.Exec(ctx, query,
		bet.ID.String(),
		bet.RoundID,
		bet.RoomID,
		bet.PlayerID,
		bet.OperatorID,
		bet.SessionRef,
		bet.GameID,
		bet.Token,
		bet.IP,
		bet.StakeTotal,
		bet.Wagers,
		bet.DebitTxnID.String(),
		string(status),
		bet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bet: %w", err)
	}
	return nil
}

func (r *betRepository) UpdateStatus(ctx context.Context, betIDs []uuid.UUID, status entities.BetStatus) error {
	if len(betIDs) == 0 {
		return nil
	}

	// Convert ids for the uuid[] parameter
	ids := make([]string, len(betIDs))
	for i, id := range betIDs {
		ids[i] = id.String()
	}

	query := `UPDATE bets SET status = $2, updated_at = NOW() WHERE bet_id = ANY($1::uuid[])`
	if _, err := r.q.Exec(ctx, query, ids, string(status)); err != nil {
		return fmt.Errorf("failed to update bet status: %w", err)
	}
	return nil
}

func (r *betRepository) GetPlaced(ctx context.Context) ([]*entities.Bet, error) {
	query := `
		SELECT bet_id::text, round_id, room_id, player_id, operator_id, session_ref, game_id, token, ip,
		       stake_total, selections, debit_txn_id::text, status, created_at
		FROM bets
		WHERE status = 'PLACED'
		ORDER BY created_at`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query placed bets: %w", err)
	}
	defer rows.Close()

	var bets []*entities.Bet
	for rows.Next() {
		var (
			bet     entities.Bet
			betID   string
			debitID string
			status  string
		)
		err := rows.Scan(
			&betID,
			&bet.RoundID,
			&bet.RoomID,
			&bet.PlayerID,
			&bet.OperatorID,
			&bet.SessionRef,
			&bet.GameID,
			&bet.Token,
			&bet.IP,
			&bet.StakeTotal,
			&bet.Wagers,
			&debitID,
			&status,
			&bet.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		if bet.ID, err = uuid.Parse(betID); err != nil {
			return nil, fmt.Errorf("failed to parse bet id: %w", err)
		}
		if bet.DebitTxnID, err = uuid.Parse(debitID); err != nil {
			return nil, fmt.Errorf("failed to parse debit txn id: %w", err)
		}
		bet.Status = entities.BetStatus(status)
		bets = append(bets, &bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}
	return bets, nil
}
