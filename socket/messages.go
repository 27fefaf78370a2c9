package socket

import (
	"encoding/json"
	"reflect"

	"colorgame/domain/events"
	"colorgame/domain/services"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Inbound event names
const (
	InPlaceBet  = "place-bet"
	InJoinRoom  = "join-room"
	InLeaveRoom = "leave-room"
)

// Envelope is the wire frame in both directions
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event events.EventType `json:"event"`
	Data  events.Event     `json:"data"`
}

// encode renders an event into a frame
func encode(event events.Event) ([]byte, error) {
	return json.Marshal(outbound{Event: event.Type(), Data: event})
}

// SelectionMessage is one wager in a place-bet payload
type SelectionMessage struct {
	Selection string          `json:"selection" validate:"required,max=3"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
}

// PlaceBetMessage is the place-bet payload
type PlaceBetMessage struct {
	LobbyID    string             `json:"lobbyId" validate:"required"`
	Selections []SelectionMessage `json:"selections" validate:"required,min=1,max=21,dive"`
}

func (m PlaceBetMessage) request() services.PlaceBetRequest {
	req := services.PlaceBetRequest{RoundID: m.LobbyID}
	for _, s := range m.Selections {
		req.Wagers = append(req.Wagers, services.WagerRequest{Selection: s.Selection, Amount: s.Amount})
	}
	return req
}

// JoinRoomMessage is the join-room payload
type JoinRoomMessage struct {
	RoomID int `json:"roomId" validate:"required,gt=0"`
}

// newValidator teaches the validator to compare decimals numerically
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}
