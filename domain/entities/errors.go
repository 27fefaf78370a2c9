package entities

import "errors"

// Placement and membership rejections. Each maps to a terse client message
// through UserMessage.
var (
	ErrRoundClosed         = errors.New("round closed")
	ErrInvalidBet          = errors.New("invalid bet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRoom         = errors.New("invalid room")
	ErrInvalidLobby        = errors.New("invalid lobby")
	ErrStakeOutOfBounds    = errors.New("stake out of bounds")
	ErrNotInRoom           = errors.New("player not in room")
	ErrAlreadyInRoom       = errors.New("player already in a room")
	ErrAlreadyPlaced       = errors.New("bet already placed for this round")
	ErrDebitRejected       = errors.New("debit rejected by wallet")
	ErrSessionNotFound     = errors.New("session not found")
)

var userMessages = []struct {
	err error
	msg string
}{
	{ErrRoundClosed, "Round closed"},
	{ErrInsufficientBalance, "Insufficient balance"},
	{ErrStakeOutOfBounds, "Invalid bet amount"},
	{ErrInvalidBet, "Invalid bet"},
	{ErrInvalidRoom, "Invalid room"},
	{ErrInvalidLobby, "Invalid lobby"},
	{ErrNotInRoom, "Join a room first"},
	{ErrAlreadyInRoom, "Already in a room"},
	{ErrAlreadyPlaced, "Bet already placed"},
	{ErrDebitRejected, "Bet cancelled by upstream"},
	{ErrSessionNotFound, "Session expired"},
}

// UserMessage returns the client-facing text for err. Unknown errors collapse
// to a generic message so internal detail never reaches a player.
func UserMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong"
}
