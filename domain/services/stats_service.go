package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"colorgame/domain/entities"
	"colorgame/domain/interfaces"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	leaderboardSize = 3
	seedRowLimit    = 400
)

// StatsService keeps the rolling outcome history of every room and the
// global top-winner boards for the lifetime of the process.
type StatsService struct {
	capacity int
	rounds   interfaces.RoundRepository

	mu    sync.RWMutex
	rooms map[int]*outcomeRing

	boardMu sync.Mutex
	biggest []entities.Winner
	highest []entities.Winner
}

// outcomeRing is a fixed-capacity buffer of the newest outcomes
type outcomeRing struct {
	mu    sync.Mutex
	items []entities.Outcome
	next  int
	full  bool
}

// NewStatsService creates a stats service keeping capacity outcomes per room
func NewStatsService(rounds interfaces.RoundRepository, capacity int) *StatsService {
	if capacity <= 0 {
		capacity = entities.DefaultGameRules().HistorySize
	}
	return &StatsService{
		capacity: capacity,
		rounds:   rounds,
		rooms:    make(map[int]*outcomeRing),
	}
}

func (s *StatsService) ring(roomID int) *outcomeRing {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[roomID]; !ok {
		r = &outcomeRing{items: make([]entities.Outcome, s.capacity)}
		s.rooms[roomID] = r
	}
	return r
}

func (r *outcomeRing) push(o entities.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = append(entities.Outcome(nil), o...)
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// newestFirst must be called with r.mu held
func (r *outcomeRing) newestFirst() []entities.Outcome {
	n := r.next
	if r.full {
		n = len(r.items)
	}
	out := make([]entities.Outcome, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

// RecordOutcome appends a drawn outcome to the room's history
func (s *StatsService) RecordOutcome(roomID int, outcome entities.Outcome) {
	s.ring(roomID).push(outcome)
}

// RoomStats returns the room's history, newest first, with symbol frequencies
func (s *StatsService) RoomStats(roomID int) *entities.RoomStats {
	r := s.ring(roomID)
	r.mu.Lock()
	history := r.newestFirst()
	r.mu.Unlock()

	return &entities.RoomStats{
		RoomID:      roomID,
		History:     history,
		Percentages: SymbolPercentages(history),
	}
}

// SymbolPercentages returns how often each symbol was drawn, in percent
// rounded to two decimals. Every symbol is present, zero when never drawn.
func SymbolPercentages(history []entities.Outcome) map[entities.Symbol]float64 {
	counts := make(map[entities.Symbol]int)
	total := 0
	for _, o := range history {
		for _, sym := range o {
			if sym.Valid() {
				counts[sym]++
				total++
			}
		}
	}

	out := make(map[entities.Symbol]float64, int(entities.MaxSymbol))
	for sym := entities.MinSymbol; sym <= entities.MaxSymbol; sym++ {
		if total == 0 {
			out[sym] = 0
			continue
		}
		out[sym] = math.Round(float64(counts[sym])/float64(total)*10000) / 100
	}
	return out
}

// RecordWinners merges a round's winners into the global boards
func (s *StatsService) RecordWinners(players []*entities.PlayerSettlement) {
	var round []entities.Winner
	for _, p := range players {
		if !p.WinAmount.IsPositive() {
			continue
		}
		round = append(round, entities.Winner{
			PlayerID:   p.Player.PlayerID,
			OperatorID: p.Player.OperatorID,
			WinAmount:  p.WinAmount,
			Multiplier: p.Multiplier,
		})
	}
	if len(round) == 0 {
		return
	}

	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	s.biggest = mergeBoard(s.biggest, round, func(w entities.Winner) decimal.Decimal { return w.WinAmount })
	s.highest = mergeBoard(s.highest, round, func(w entities.Winner) decimal.Decimal { return w.Multiplier })
}

// mergeBoard keeps the best entry per player and the top leaderboardSize overall
func mergeBoard(board, round []entities.Winner, metric func(entities.Winner) decimal.Decimal) []entities.Winner {
	candidates := make([]entities.Winner, 0, len(board)+len(round))
	candidates = append(candidates, board...)
	candidates = append(candidates, round...)

	sort.SliceStable(candidates, func(i, j int) bool {
		return metric(candidates[i]).GreaterThan(metric(candidates[j]))
	})

	seen := make(map[entities.PlayerKey]bool)
	out := make([]entities.Winner, 0, leaderboardSize)
	for _, w := range candidates {
		key := entities.PlayerKey{OperatorID: w.OperatorID, PlayerID: w.PlayerID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
		if len(out) == leaderboardSize {
			break
		}
	}
	return out
}

// Leaderboards returns both boards with player ids masked
func (s *StatsService) Leaderboards() entities.Leaderboards {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	return entities.Leaderboards{
		BiggestWins:     maskBoard(s.biggest),
		HighestMultiple: maskBoard(s.highest),
	}
}

func maskBoard(board []entities.Winner) []entities.Winner {
	out := make([]entities.Winner, len(board))
	for i, w := range board {
		out[i] = entities.Winner{
			PlayerID:   entities.MaskPlayerID(w.PlayerID),
			WinAmount:  w.WinAmount,
			Multiplier: w.Multiplier,
		}
	}
	return out
}

// Seed rebuilds every room's history from the newest stored rounds
func (s *StatsService) Seed(ctx context.Context) error {
	if s.rounds == nil {
		return nil
	}

	entries, err := s.rounds.RecentOutcomes(ctx, seedRowLimit)
	if err != nil {
		return fmt.Errorf("failed to load recent outcomes: %w", err)
	}

	perRoom := make(map[int][]*entities.HistoryEntry)
	for _, e := range entries {
		perRoom[e.RoomID] = append(perRoom[e.RoomID], e)
	}

	s.mu.Lock()
	for roomID, list := range perRoom {
		r := &outcomeRing{items: make([]entities.Outcome, s.capacity)}
		// entries arrive newest first; replay oldest first
		start := len(list) - 1
		if len(list) > s.capacity {
			start = s.capacity - 1
		}
		for i := start; i >= 0; i-- {
			r.push(list[i].Outcome)
		}
		s.rooms[roomID] = r
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"rounds": len(entries),
		"rooms":  len(perRoom),
	}).Info("Seeded outcome history")
	return nil
}
