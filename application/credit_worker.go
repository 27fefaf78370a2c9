package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"colorgame/domain/interfaces"
	"colorgame/infrastructure"

	log "github.com/sirupsen/logrus"
)

const creditDurable = "wallet-credit-worker"

// Subscriber is the durable queue consumer the worker reads from
type Subscriber interface {
	Subscribe(subject, durable string, handler func(ctx context.Context, data []byte) error) error
}

// CreditWorker delivers queued wallet credits. A credit keeps its original
// transaction id across retries so the wallet applies it at most once.
type CreditWorker struct {
	wallet interfaces.WalletClient
}

// NewCreditWorker creates a worker posting to wallet
func NewCreditWorker(wallet interfaces.WalletClient) *CreditWorker {
	return &CreditWorker{wallet: wallet}
}

// Start subscribes the worker to the credit subject
func (w *CreditWorker) Start(sub Subscriber) error {
	if err := sub.Subscribe(infrastructure.CreditSubject, creditDurable, w.Handle); err != nil {
		return fmt.Errorf("failed to subscribe credit worker: %w", err)
	}
	log.WithField("subject", infrastructure.CreditSubject).Info("Credit worker subscribed")
	return nil
}

// Handle posts one queued credit. Rejections the wallet will never accept
// are marked permanent; anything else is retried by redelivery.
func (w *CreditWorker) Handle(ctx context.Context, data []byte) error {
	txn, err := infrastructure.DecodeCreditMessage(data)
	if err != nil {
		return err
	}

	fields := log.Fields{
		"txn_id":     txn.TxnID,
		"txn_ref_id": txn.CorrelationTxnID,
		"user_id":    txn.PlayerID,
		"operator":   txn.OperatorID,
		"amount":     txn.Amount.String(),
	}

	if err := w.wallet.Post(ctx, txn); err != nil {
		var upstream *infrastructure.UpstreamError
		if errors.As(err, &upstream) && permanentStatus(upstream.Status) {
			log.WithFields(fields).WithError(err).Error("Wallet refused credit")
			return fmt.Errorf("%w: %v", infrastructure.ErrPermanent, err)
		}
		log.WithFields(fields).WithError(err).Warn("Credit delivery failed, will retry")
		return err
	}

	log.WithFields(fields).Info("Queued credit delivered")
	return nil
}

func permanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}
