package infrastructure

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"colorgame/domain/entities"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeElasticsearch(t *testing.T, respond string, lines *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/_bulk" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			*lines = append(*lines, line)
		}
		_, _ = w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func auditResult() *entities.SettlementResult {
	credit := uuid.New()
	return &entities.SettlementResult{
		Bet: &entities.Bet{
			ID:         uuid.New(),
			RoundID:    "1-101",
			RoomID:     101,
			PlayerID:   "alice",
			OperatorID: "op",
			StakeTotal: decimal.NewFromInt(100),
		},
		Outcome:     entities.Outcome{1, 1, 2},
		BonusSet:    entities.BonusSet{1, 7},
		WinAmount:   decimal.NewFromInt(600),
		Multiplier:  decimal.NewFromInt(6),
		Status:      entities.SettlementWin,
		CreditTxnID: &credit,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestElasticsearchAudit_IndexSettlements(t *testing.T) {
	var lines []map[string]any
	srv := fakeElasticsearch(t, `{"errors":false,"items":[]}`, &lines)

	audit, err := NewElasticsearchAudit(srv.URL, "")
	require.NoError(t, err)

	res := auditResult()
	require.NoError(t, audit.IndexSettlements(context.Background(), []*entities.SettlementResult{res}))

	require.Len(t, lines, 2)
	action := lines[0]["index"].(map[string]any)
	assert.Equal(t, "colorgame_settlements-2024.03", action["_index"])
	assert.Equal(t, res.Bet.ID.String(), action["_id"])
	assert.Equal(t, "WIN", lines[1]["status"])
	assert.Equal(t, res.CreditTxnID.String(), lines[1]["credit_txn_id"])
}

func TestElasticsearchAudit_ItemErrors(t *testing.T) {
	var lines []map[string]any
	srv := fakeElasticsearch(t, `{"errors":true,"items":[{"index":{"status":400,"error":{"reason":"mapper_parsing_exception"}}}]}`, &lines)

	audit, err := NewElasticsearchAudit(srv.URL, "audit")
	require.NoError(t, err)

	err = audit.IndexSettlements(context.Background(), []*entities.SettlementResult{auditResult()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1")
}

func TestElasticsearchAudit_EmptyBatchSkipsRequest(t *testing.T) {
	var lines []map[string]any
	srv := fakeElasticsearch(t, `{}`, &lines)

	audit, err := NewElasticsearchAudit(srv.URL, "")
	require.NoError(t, err)
	require.NoError(t, audit.IndexSettlements(context.Background(), nil))
	assert.Empty(t, lines)
}
