package entities

import (
	"fmt"
	"time"
)

// RoundStatus is the lifecycle phase of a round
type RoundStatus string

const (
	RoundOpening     RoundStatus = "OPENING"
	RoundBetting     RoundStatus = "BETTING"
	RoundDrawing     RoundStatus = "DRAWING"
	RoundCalculating RoundStatus = "CALCULATING"
	RoundSettled     RoundStatus = "SETTLED"
	RoundClosed      RoundStatus = "CLOSED"
)

// Round is one timed betting cycle of a room
type Round struct {
	ID            string      `db:"round_id" json:"roundId"`
	RoomID        int         `db:"room_id" json:"roomId"`
	Status        RoundStatus `json:"status"`
	Outcome       Outcome     `db:"outcome" json:"outcome,omitempty"`
	BonusSet      BonusSet    `db:"bonus_set" json:"bonusSet,omitempty"`
	OpenedAt      time.Time   `db:"opened_at" json:"openedAt"`
	BettingEndsAt time.Time   `json:"bettingEndsAt"`
	DrawnAt       *time.Time  `db:"drawn_at" json:"drawnAt,omitempty"`
	ClosedAt      *time.Time  `db:"closed_at" json:"closedAt,omitempty"`
}

// NewRoundID builds a time-sortable round identifier. It is opaque: callers
// carry RoomID and OpenedAt as fields and never parse the id.
func NewRoundID(roomID int, openedAt time.Time) string {
	return fmt.Sprintf("%d-%d", openedAt.UnixMilli(), roomID)
}

// NewRound creates a round in OPENING
func NewRound(roomID int, openedAt time.Time) *Round {
	return &Round{
		ID:       NewRoundID(roomID, openedAt),
		RoomID:   roomID,
		Status:   RoundOpening,
		OpenedAt: openedAt,
	}
}

// AcceptsBets reports whether a bet stamped at now falls inside the betting window
func (r *Round) AcceptsBets(now time.Time) bool {
	return r.Status == RoundBetting && now.Before(r.BettingEndsAt)
}

// SetOutcome assigns the drawn outcome; a round is drawn exactly once
func (r *Round) SetOutcome(outcome Outcome, drawnAt time.Time) error {
	if r.Outcome != nil {
		return fmt.Errorf("round %s already has an outcome", r.ID)
	}
	if len(outcome) != OutcomeLength {
		return fmt.Errorf("outcome must have %d symbols, got %d", OutcomeLength, len(outcome))
	}
	for _, s := range outcome {
		if !s.Valid() {
			return fmt.Errorf("outcome symbol %d out of range", s)
		}
	}
	r.Outcome = append(Outcome(nil), outcome...)
	r.DrawnAt = &drawnAt
	return nil
}

// IsDrawn reports whether the outcome has been assigned
func (r *Round) IsDrawn() bool {
	return r.Outcome != nil
}

// Close stamps the round as finished
func (r *Round) Close(closedAt time.Time) {
	r.Status = RoundClosed
	r.ClosedAt = &closedAt
}

// Clone returns a copy safe to hand to readers outside the round machine
func (r *Round) Clone() *Round {
	c := *r
	c.Outcome = append(Outcome(nil), r.Outcome...)
	c.BonusSet = append(BonusSet(nil), r.BonusSet...)
	return &c
}
