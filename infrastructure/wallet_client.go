package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"colorgame/domain/entities"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var thirdPartyLog = log.WithField("stream", "third_party")

// walletRequest is the operator's balance mutation body
type walletRequest struct {
	Amount      string     `json:"amount"`
	TxnID       string     `json:"txn_id"`
	IP          string     `json:"ip"`
	GameID      string     `json:"game_id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	TxnType     int        `json:"txn_type"`
	BetID       *uuid.UUID `json:"bet_id,omitempty"`
	TxnRefID    *uuid.UUID `json:"txn_ref_id,omitempty"`
}

// UpstreamError is a non-2xx answer from the operator service
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// HTTPWalletClient posts balance mutations to the operator wallet
type HTTPWalletClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWalletClient creates a wallet client; per-call deadlines come from ctx
func NewHTTPWalletClient(baseURL string, timeout time.Duration) *HTTPWalletClient {
	return &HTTPWalletClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPWalletClient) Post(ctx context.Context, txn *entities.WalletTransaction) error {
	body := walletRequest{
		Amount:      txn.Amount.StringFixed(2),
		TxnID:       txn.TxnID.String(),
		IP:          txn.IP,
		GameID:      txn.GameID,
		UserID:      txn.PlayerID,
		Description: txn.Description,
		TxnType:     int(txn.Type),
	}
	// Debits reference the bet, credits the debit they answer
	if txn.Type == entities.TxnDebit {
		betID := txn.BetID
		body.BetID = &betID
	} else {
		ref := txn.CorrelationTxnID
		body.TxnRefID = &ref
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/service/operator/user/balance/v2", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create wallet request: %w", err)
	}
	// The operator authenticates the player by token
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", txn.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		thirdPartyLog.WithFields(log.Fields{
			"txn_id":   body.TxnID,
			"txn_type": body.TxnType,
		}).WithError(err).Error("Wallet request failed")
		return fmt.Errorf("wallet request failed: %w", err)
	}
	defer resp.Body.Close()

	// Keep a bounded copy of the body for logging
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fields := log.Fields{
		"txn_id":   body.TxnID,
		"txn_type": body.TxnType,
		"amount":   body.Amount,
		"user_id":  body.UserID,
		"status":   resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		thirdPartyLog.WithFields(fields).WithField("response", string(respBody)).Error("Wallet rejected transaction")
		return &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	thirdPartyLog.WithFields(fields).Info("Wallet transaction accepted")
	return nil
}
