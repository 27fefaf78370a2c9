package repository

import (
	"context"
	"fmt"

	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type settlementRepository struct {
	q Queryable
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *database.DB) interfaces.SettlementRepository {
	return &settlementRepository{q: db.Pool}
}

func newSettlementRepositoryWithTx(tx Queryable) interfaces.SettlementRepository {
	return &settlementRepository{q: tx}
}

// CreateBatch inserts all rows in one round trip. A bet already settled
// keeps its original row.
func (r *settlementRepository) CreateBatch(ctx context.Context, results []*entities.SettlementResult) error {
	if len(results) == 0 {
		return nil
	}

	query := `
		INSERT INTO settlements (bet_id, round_id, room_id, player_id, operator_id, stake_total, selections,
		                         outcome, bonus_set, win_amount, multiplier, status, credit_txn_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bet_id) DO NOTHING`

	// Queue one insert per bet
	batch := &pgx.Batch{}
	for _, res := range results {
		bet := res.Bet
		bonus := res.BonusSet
		if bonus == nil {
			bonus = entities.BonusSet{}
		}
		// Losing bets carry no credit
		var credit *string
		if res.CreditTxnID != nil {
			id := res.CreditTxnID.String()
			credit = &id
		}
		batch.Queue(query,
			bet.ID.String(),
			bet.RoundID,
			bet.RoomID,
			bet.PlayerID,
			bet.OperatorID,
			bet.StakeTotal,
			res.Results,
			res.Outcome,
			bonus,
			res.WinAmount,
			res.Multiplier,
			string(res.Status),
			credit,
			res.CreatedAt,
		)
	}

	br := r.q.SendBatch(ctx, batch)
	defer br.Close()

	// Check every queued insert
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}
	}
	return nil
}

func (r *settlementRepository) GetByRound(ctx context.Context, roundID string) ([]*entities.SettlementResult, error) {
	query := `
		SELECT id, bet_id::text, round_id, room_id, player_id, operator_id, stake_total, selections,
		       outcome, bonus_set, win_amount, multiplier, status, credit_txn_id::text, created_at
		FROM settlements
		WHERE round_id = $1
		ORDER BY id`

	rows, err := r.q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var results []*entities.SettlementResult
	for rows.Next() {
		var (
			res    entities.SettlementResult
			bet    entities.Bet
			betID  string
			credit *string
			status string
		)
		err := rows.Scan(
			&res.ID,
			&betID,
			&bet.RoundID,
			&bet.RoomID,
			&bet.PlayerID,
			&bet.OperatorID,
			&bet.StakeTotal,
			&res.Results,
			&res.Outcome,
			&res.BonusSet,
			&res.WinAmount,
			&res.Multiplier,
			&status,
			&credit,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		if bet.ID, err = uuid.Parse(betID); err != nil {
			return nil, fmt.Errorf("failed to parse bet id: %w", err)
		}
		if credit != nil {
			id, err := uuid.Parse(*credit)
			if err != nil {
				return nil, fmt.Errorf("failed to parse credit txn id: %w", err)
			}
			res.CreditTxnID = &id
		}
		// Rebuild the wagers from the per-selection results
		for _, sr := range res.Results {
			bet.Wagers = append(bet.Wagers, entities.Wager{Selection: sr.Selection, Amount: sr.Stake})
		}
		bet.Status = entities.BetSettled
		res.Status = entities.SettlementStatus(status)
		res.Bet = &bet
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return results, nil
}
