package entities

import "github.com/shopspring/decimal"

// StakeBounds is an inclusive stake range
type StakeBounds struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Contains reports whether amount is within the bounds
func (b StakeBounds) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.Min) && amount.LessThanOrEqual(b.Max)
}

// Room is one stake tier running its own sequence of rounds
type Room struct {
	ID int `json:"roomId"`

	// Chips are the denominations a client offers; stakes are only bounded
	Chips  []decimal.Decimal `json:"chips"`
	Single StakeBounds       `json:"single"`
	Pair   StakeBounds       `json:"combination"`
}

// BoundsFor returns the stake range for a selection kind
func (r *Room) BoundsFor(kind SelectionKind) StakeBounds {
	if kind == SelectionPair {
		return r.Pair
	}
	return r.Single
}

// RoomView is a room definition merged with its live occupancy for lobby listings
type RoomView struct {
	Room
	Occupancy int64 `json:"plCnt"`
}

func chips(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func bounds(min, max int64) StakeBounds {
	return StakeBounds{Min: decimal.NewFromInt(min), Max: decimal.NewFromInt(max)}
}

// DefaultRooms returns the built-in room table used when no templates are stored
func DefaultRooms() []*Room {
	return []*Room{
		{ID: 101, Chips: chips(50, 100, 200, 300, 500, 750), Single: bounds(50, 500), Pair: bounds(50, 200)},
		{ID: 102, Chips: chips(100, 200, 300, 500, 750, 1250), Single: bounds(100, 1250), Pair: bounds(100, 500)},
		{ID: 103, Chips: chips(500, 750, 1000, 2000, 3000, 5000), Single: bounds(500, 5000), Pair: bounds(500, 2000)},
		{ID: 104, Chips: chips(1000, 2000, 3000, 5000, 7500, 10000), Single: bounds(1000, 12500), Pair: bounds(1000, 5000)},
	}
}
