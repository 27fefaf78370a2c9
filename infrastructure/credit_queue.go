package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"colorgame/domain/entities"

	"github.com/nats-io/nats.go"
)

const (
	// CreditStream holds wallet credits until the operator wallet accepts them
	CreditStream  = "wallet_credits"
	CreditSubject = "wallet.credit"
)

// CreditMessage is the queued form of a credit. The token travels beside the
// transaction because it is never part of the wallet request body.
type CreditMessage struct {
	Txn   *entities.WalletTransaction `json:"txn"`
	Token string                      `json:"token"`
}

// CreditQueue publishes credits to JetStream, deduplicated by transaction id
type CreditQueue struct {
	client *NATSClient
}

// NewCreditQueue creates the credit publisher
func NewCreditQueue(client *NATSClient) *CreditQueue {
	return &CreditQueue{client: client}
}

// EnsureStream creates the credit stream with a duplicate window wide enough
// to absorb settlement retries
func (q *CreditQueue) EnsureStream() error {
	return q.client.ensureStream(&nats.StreamConfig{
		Name:        CreditStream,
		Subjects:    []string{CreditSubject},
		Retention:   nats.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Duplicates:  10 * time.Minute,
		Description: "Pending wallet credits and refunds",
	})
}

func (q *CreditQueue) Publish(ctx context.Context, txn *entities.WalletTransaction) error {
	data, err := json.Marshal(CreditMessage{Txn: txn, Token: txn.Token})
	if err != nil {
		return fmt.Errorf("failed to marshal credit: %w", err)
	}

	// Dedupe on the transaction id within the stream's duplicate window
	msg := nats.NewMsg(CreditSubject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, txn.TxnID.String())

	return q.client.PublishMsg(ctx, msg)
}

// DecodeCreditMessage restores a queued credit, token included
func DecodeCreditMessage(data []byte) (*entities.WalletTransaction, error) {
	var msg CreditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed credit message: %v", ErrPermanent, err)
	}
	if msg.Txn == nil {
		return nil, fmt.Errorf("%w: credit message without transaction", ErrPermanent)
	}
	msg.Txn.Token = msg.Token
	return msg.Txn, nil
}
