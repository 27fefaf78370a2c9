package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol is one face of the color die: 1 Yellow, 2 White, 3 Pink, 4 Blue, 5 Red, 6 Green
type Symbol int

const (
	MinSymbol     Symbol = 1
	MaxSymbol     Symbol = 6
	OutcomeLength        = 3
)

var symbolNames = map[Symbol]string{
	1: "yellow",
	2: "white",
	3: "pink",
	4: "blue",
	5: "red",
	6: "green",
}

// Valid reports whether s is on the die
func (s Symbol) Valid() bool {
	return s >= MinSymbol && s <= MaxSymbol
}

// Name returns the color name of the symbol
func (s Symbol) Name() string {
	return symbolNames[s]
}

// SelectionKind distinguishes single-symbol wagers from pair wagers
type SelectionKind string

const (
	SelectionSingle SelectionKind = "single"
	SelectionPair   SelectionKind = "pair"
)

// Selection is a single symbol or an unordered symbol pair. Pairs are
// normalized so that First < Second.
type Selection struct {
	First  Symbol
	Second Symbol // zero for singles
}

// pairBonusIDs numbers every pair for the bonus draw. Singles use their symbol.
var pairBonusIDs = map[[2]Symbol]int{
	{1, 2}: 7,
	{2, 3}: 8,
	{1, 4}: 9,
	{2, 5}: 10,
	{3, 6}: 11,
	{4, 5}: 12,
	{5, 6}: 13,
	{1, 3}: 14,
	{1, 5}: 15,
	{4, 6}: 16,
	{2, 4}: 17,
	{3, 5}: 18,
	{3, 4}: 19,
	{2, 6}: 20,
	{1, 6}: 21,
}

// MaxBonusID is the highest identifier in the bonus numbering
const MaxBonusID = 21

// Single builds a one-symbol selection
func Single(s Symbol) Selection {
	return Selection{First: s}
}

// Pair builds a normalized two-symbol selection
func Pair(a, b Symbol) Selection {
	if a > b {
		a, b = b, a
	}
	return Selection{First: a, Second: b}
}

// ParseSelection accepts "3" or "1-4" (either order)
func ParseSelection(raw string) (Selection, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) > 2 {
		return Selection{}, fmt.Errorf("%w: selection %q", ErrInvalidBet, raw)
	}

	symbols := make([]Symbol, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || !Symbol(n).Valid() {
			return Selection{}, fmt.Errorf("%w: selection %q", ErrInvalidBet, raw)
		}
		symbols = append(symbols, Symbol(n))
	}

	if len(symbols) == 1 {
		return Single(symbols[0]), nil
	}
	if symbols[0] == symbols[1] {
		return Selection{}, fmt.Errorf("%w: selection %q repeats a symbol", ErrInvalidBet, raw)
	}
	return Pair(symbols[0], symbols[1]), nil
}

// Kind returns whether the selection is a single or a pair
func (s Selection) Kind() SelectionKind {
	if s.Second == 0 {
		return SelectionSingle
	}
	return SelectionPair
}

// BonusID returns the identifier used when drawing bonus sets
func (s Selection) BonusID() int {
	if s.Kind() == SelectionSingle {
		return int(s.First)
	}
	return pairBonusIDs[[2]Symbol{s.First, s.Second}]
}

// String renders the canonical wire form ("3" or "1-4")
func (s Selection) String() string {
	if s.Kind() == SelectionSingle {
		return strconv.Itoa(int(s.First))
	}
	return fmt.Sprintf("%d-%d", s.First, s.Second)
}

// MarshalText encodes the selection in its wire form
func (s Selection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes the wire form
func (s *Selection) UnmarshalText(text []byte) error {
	parsed, err := ParseSelection(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Outcome is the ordered sequence of drawn symbols for a round
type Outcome []Symbol

// Count returns how many times sym was drawn
func (o Outcome) Count(sym Symbol) int {
	n := 0
	for _, s := range o {
		if s == sym {
			n++
		}
	}
	return n
}

// Contains reports whether sym appears anywhere in the outcome
func (o Outcome) Contains(sym Symbol) bool {
	return o.Count(sym) > 0
}

// BonusSet holds the bonus identifiers drawn for a round
type BonusSet []int

// Contains reports whether id is boosted this round
func (b BonusSet) Contains(id int) bool {
	for _, v := range b {
		if v == id {
			return true
		}
	}
	return false
}
