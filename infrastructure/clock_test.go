package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClock_SleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, SystemClock{}.Sleep(context.Background(), time.Millisecond))
	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
}

func TestCryptoRandom_Intn(t *testing.T) {
	r := CryptoRandom{}
	seen := map[int]bool{}
	for i := 0; i < 600; i++ {
		v, err := r.Intn(6)
		require.NoError(t, err)
		require.True(t, v >= 0 && v < 6)
		seen[v] = true
	}
	assert.Len(t, seen, 6)

	_, err := r.Intn(0)
	assert.Error(t, err)
}
