package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("BETTING_SECONDS", "20")
	t.Setenv("MAX_CASHOUT_AMOUNT", "250000.50")
	t.Setenv("ALLOW_REPEAT_BETS", "false")
	t.Setenv("DEBIT_TIMEOUT", "3s")
	t.Setenv("BONUS_SET_SIZE", "not-a-number")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.BettingSeconds)
	assert.True(t, cfg.MaxCashoutAmount.Equal(decimal.RequireFromString("250000.50")))
	assert.False(t, cfg.AllowRepeatBets)
	assert.Equal(t, 3*time.Second, cfg.DebitTimeout)
	assert.Equal(t, 2, cfg.BonusSetSize, "unparsable values fall back to the default")
	assert.Equal(t, time.Hour, cfg.SessionTTL)

	rules := cfg.GameRules()
	assert.Equal(t, 20*time.Second, rules.BettingDuration)
	assert.False(t, rules.AllowRepeatBets)
	assert.True(t, rules.PairMultiplier.Equal(decimal.NewFromInt(5)))
}

func TestLoad_RequiresDatabaseOutsideTest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVICE_BASE_URL", "http://operator")

	_, err := load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RejectsInvertedBetLimits(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("MIN_BET_AMOUNT", "500")
	t.Setenv("MAX_BET_AMOUNT", "100")

	_, err := load()
	assert.Error(t, err)
}

func TestSetTestConfig(t *testing.T) {
	t.Cleanup(ResetConfig)

	cfg := NewTestConfig()
	cfg.HTTPAddr = ":9999"
	SetTestConfig(cfg)

	assert.Same(t, cfg, Get())
}
