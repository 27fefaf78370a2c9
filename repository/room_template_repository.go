package repository

import (
	"context"
	"fmt"

	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"
)

type roomTemplateRepository struct {
	q Queryable
}

// NewRoomTemplateRepository creates a repository over the game_templates table
func NewRoomTemplateRepository(db *database.DB) interfaces.RoomTemplateRepository {
	return &roomTemplateRepository{q: db.Pool}
}

func (r *roomTemplateRepository) GetActive(ctx context.Context) ([]*entities.Room, error) {
	query := `SELECT id, data FROM game_templates WHERE is_active ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query room templates: %w", err)
	}
	defer rows.Close()

	var rooms []*entities.Room
	for rows.Next() {
		var (
			id   int
			room entities.Room
		)
		if err := rows.Scan(&id, &room); err != nil {
			return nil, fmt.Errorf("failed to scan room template %d: %w", id, err)
		}
		// the row key wins over whatever the payload claims
		room.ID = id
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room templates: %w", err)
	}
	return rooms, nil
}
