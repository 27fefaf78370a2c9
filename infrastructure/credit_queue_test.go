package infrastructure

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"colorgame/domain/entities"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()

	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func connectedQueue(t *testing.T, srv *server.Server) (*NATSClient, *CreditQueue) {
	t.Helper()
	client := NewNATSClient(srv.ClientURL(), nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	queue := NewCreditQueue(client)
	require.NoError(t, queue.EnsureStream())
	require.NoError(t, queue.EnsureStream(), "second call finds the stream")
	return client, queue
}

func TestCreditQueue_DeduplicatesByTxnID(t *testing.T) {
	srv := runJetStream(t)
	client, queue := connectedQueue(t, srv)

	txn := testTxn(entities.TxnCredit)
	require.NoError(t, queue.Publish(context.Background(), txn))
	require.NoError(t, queue.Publish(context.Background(), txn))

	received := make(chan *entities.WalletTransaction, 4)
	require.NoError(t, client.Subscribe(CreditSubject, "credit-test", func(_ context.Context, data []byte) error {
		decoded, err := DecodeCreditMessage(data)
		if err != nil {
			return err
		}
		received <- decoded
		return nil
	}))

	select {
	case got := <-received:
		assert.Equal(t, txn.TxnID, got.TxnID)
		assert.Equal(t, "tok-alice", got.Token)
		assert.True(t, got.Amount.Equal(txn.Amount))
	case <-time.After(5 * time.Second):
		t.Fatal("credit not delivered")
	}

	select {
	case <-received:
		t.Fatal("duplicate credit delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNATSClient_RedeliversUntilHandled(t *testing.T) {
	srv := runJetStream(t)
	client, queue := connectedQueue(t, srv)
	client.reconnectDelay = 10 * time.Millisecond

	var attempts atomic.Int32
	done := make(chan struct{})
	require.NoError(t, client.Subscribe(CreditSubject, "retry-test", func(_ context.Context, data []byte) error {
		if attempts.Add(1) < 3 {
			return errors.New("wallet unavailable")
		}
		close(done)
		return nil
	}))
	require.NoError(t, queue.Publish(context.Background(), testTxn(entities.TxnCredit)))

	select {
	case <-done:
		assert.Equal(t, int32(3), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("message was not redelivered")
	}
}

func TestDecodeCreditMessage_MalformedIsPermanent(t *testing.T) {
	_, err := DecodeCreditMessage([]byte("{"))
	assert.ErrorIs(t, err, ErrPermanent)

	_, err = DecodeCreditMessage([]byte(`{"token":"x"}`))
	assert.ErrorIs(t, err, ErrPermanent)
}
