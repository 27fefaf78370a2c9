package main

import (
	"math/rand"
	"testing"

	"colorgame/domain/entities"
	"colorgame/domain/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seeded struct{ r *rand.Rand }

func (s seeded) Intn(n int) (int, error) { return s.r.Intn(n), nil }

func TestSelections(t *testing.T) {
	assert.Len(t, Selections(), 21)
}

func TestExactRTP_SingleWithoutBonus(t *testing.T) {
	payout := services.NewPayoutRules(entities.DefaultGameRules())
	rtp := ExactRTP(payout, 0)

	// 75 outcomes pay 2x, 15 pay 3x, 1 pays 4x
	assert.InDelta(t, 199.0/216.0, rtp["1"], 1e-9)
	assert.InDelta(t, rtp["1"], rtp["6"], 1e-9)
}

func TestSimulate_ConvergesOnExact(t *testing.T) {
	rules := entities.DefaultGameRules()
	payout := services.NewPayoutRules(rules)

	res, err := Simulate(payout, rules.BonusSetSize, 50000, seeded{rand.New(rand.NewSource(7))})
	require.NoError(t, err)

	exact := ExactRTP(payout, rules.BonusSetSize)
	for sel, want := range exact {
		assert.InDelta(t, want, res.RTP[sel], 0.05, "selection %s", sel)
	}
	assert.Less(t, res.ChiSquared, 20.52, "symbols look uniform at 99.9%")
}

func TestDrawBonus_Distinct(t *testing.T) {
	set, err := drawBonus(seeded{rand.New(rand.NewSource(1))}, 5)
	require.NoError(t, err)
	require.Len(t, set, 5)

	seen := map[int]bool{}
	for _, id := range set {
		assert.False(t, seen[id])
		assert.True(t, id >= 1 && id <= entities.MaxBonusID)
		seen[id] = true
	}
}
