package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"colorgame/domain/entities"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ElasticsearchAudit mirrors settlement rows into monthly indices. Documents
// are keyed by bet id so re-indexing a settlement overwrites instead of duplicating.
type ElasticsearchAudit struct {
	client      *elasticsearch.Client
	indexPrefix string
}

// settlementDoc is the searchable shape of one settlement
type settlementDoc struct {
	BetID       string                     `json:"bet_id"`
	RoundID     string                     `json:"round_id"`
	RoomID      int                        `json:"room_id"`
	PlayerID    string                     `json:"player_id"`
	OperatorID  string                     `json:"operator_id"`
	StakeTotal  decimal.Decimal            `json:"stake_total"`
	WinAmount   decimal.Decimal            `json:"win_amount"`
	Multiplier  decimal.Decimal            `json:"multiplier"`
	Status      entities.SettlementStatus  `json:"status"`
	Outcome     entities.Outcome           `json:"outcome"`
	BonusSet    entities.BonusSet          `json:"bonus_set"`
	Selections  []entities.SelectionResult `json:"selections"`
	CreditTxnID string                     `json:"credit_txn_id,omitempty"`
	SettledAt   time.Time                  `json:"settled_at"`
}

// NewElasticsearchAudit creates an audit sink against the given cluster
func NewElasticsearchAudit(url, indexPrefix string) (*ElasticsearchAudit, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}
	if indexPrefix == "" {
		indexPrefix = "colorgame"
	}
	return &ElasticsearchAudit{client: client, indexPrefix: indexPrefix}, nil
}

func (a *ElasticsearchAudit) indexFor(t time.Time) string {
	return fmt.Sprintf("%s_settlements-%s", a.indexPrefix, t.UTC().Format("2006.01"))
}

// IndexSettlements writes all rows with one bulk request
func (a *ElasticsearchAudit) IndexSettlements(ctx context.Context, results []*entities.SettlementResult) error {
	if len(results) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, res := range results {
		doc := settlementDoc{
			BetID:      res.Bet.ID.String(),
			RoundID:    res.Bet.RoundID,
			RoomID:     res.Bet.RoomID,
			PlayerID:   res.Bet.PlayerID,
			OperatorID: res.Bet.OperatorID,
			StakeTotal: res.Bet.StakeTotal,
			WinAmount:  res.WinAmount,
			Multiplier: res.Multiplier,
			Status:     res.Status,
			Outcome:    res.Outcome,
			BonusSet:   res.BonusSet,
			Selections: res.Results,
			SettledAt:  res.CreatedAt,
		}
		if res.CreditTxnID != nil {
			doc.CreditTxnID = res.CreditTxnID.String()
		}

		action := map[string]map[string]string{
			"index": {"_index": a.indexFor(res.CreatedAt), "_id": doc.BetID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("error encoding bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("error encoding settlement: %w", err)
		}
	}

	res, err := a.client.Bulk(
		bytes.NewReader(body.Bytes()),
		a.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error indexing settlements: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing settlements: %s", res.String())
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("error parsing bulk response: %w", err)
	}
	if bulk.Errors {
		failed := 0
		for _, item := range bulk.Items {
			for _, op := range item {
				if op.Error != nil {
					failed++
					log.WithField("reason", op.Error.Reason).Debug("Settlement document rejected")
				}
			}
		}
		return fmt.Errorf("%d of %d settlement documents rejected", failed, len(results))
	}
	return nil
}
