package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
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

func testTxn(kind entities.TxnType) *entities.WalletTransaction {
	return &entities.WalletTransaction{
		TxnID:            uuid.New(),
		Type:             kind,
		CorrelationTxnID: uuid.New(),
		PlayerID:         "alice",
		OperatorID:       "op",
		GameID:           "color",
		Token:            "tok-alice",
		IP:               "10.0.0.1",
		Amount:           decimal.RequireFromString("150.5"),
		RoundID:          "1-101",
		BetID:            uuid.New(),
		Description:      "150.50 debited for color game round 1-101",
	}
}

func TestHTTPWalletClient_PostDebit(t *testing.T) {
	var (
		got    map[string]any
		header string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		header = r.Header.Get("token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	txn := testTxn(entities.TxnDebit)
	client := NewHTTPWalletClient(srv.URL+"/", time.Second)
	require.NoError(t, client.Post(context.Background(), txn))

	assert.Equal(t, "/service/operator/user/balance/v2", path)
	assert.Equal(t, "tok-alice", header)
	assert.Equal(t, "150.50", got["amount"])
	assert.Equal(t, float64(0), got["txn_type"])
	assert.Equal(t, txn.BetID.String(), got["bet_id"])
	assert.NotContains(t, got, "txn_ref_id")
	assert.NotContains(t, got, "token")
}

func TestHTTPWalletClient_PostCreditCarriesReference(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	txn := testTxn(entities.TxnCredit)
	require.NoError(t, NewHTTPWalletClient(srv.URL, time.Second).Post(context.Background(), txn))

	assert.Equal(t, float64(1), got["txn_type"])
	assert.Equal(t, txn.CorrelationTxnID.String(), got["txn_ref_id"])
	assert.NotContains(t, got, "bet_id")
}

func TestHTTPWalletClient_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"insufficient funds"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPWalletClient(srv.URL, time.Second).Post(context.Background(), testTxn(entities.TxnDebit))
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.Contains(t, upstream.Body, "insufficient funds")
}

func TestHTTPWalletClient_HonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewHTTPWalletClient(srv.URL, 10*time.Second).Post(ctx, testTxn(entities.TxnDebit))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPIdentityClient_LookupSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/service/user/detail", r.URL.Path)
		switch r.Header.Get("token") {
		case "good":
			_, _ = w.Write([]byte(`{"user":{"user_id":"alice","operatorId":"op","balance":1234.5,"name":"Alice"}}`))
		case "empty":
			_, _ = w.Write([]byte(`{}`))
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewHTTPIdentityClient(srv.URL, time.Second)
	ctx := context.Background()

	profile, err := client.LookupSession(ctx, "good", "color")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "alice", profile.PlayerID)
	assert.Equal(t, "op", profile.OperatorID)
	assert.True(t, profile.Balance.Equal(decimal.RequireFromString("1234.5")))

	profile, err = client.LookupSession(ctx, "empty", "color")
	require.NoError(t, err)
	assert.Nil(t, profile)

	profile, err = client.LookupSession(ctx, "stranger", "color")
	require.NoError(t, err)
	assert.Nil(t, profile)

	_, err = client.LookupSession(ctx, "boom", "color")
	assert.Error(t, err)
}
