// Command rtp reports the return to player of every selection under the
// configured payout rules, exactly over all outcomes and by simulating draws
// with the production random source.
package main

import (
	"flag"
	"fmt"
	"math"
	"sort"

	"colorgame/config"
	"colorgame/domain/entities"
	"colorgame/domain/services"
	"colorgame/infrastructure"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func main() {
	rounds := flag.Int("rounds", 100000, "number of simulated rounds")
	flag.Parse()

	rules := config.NewTestConfig().GameRules()
	payout := services.NewPayoutRules(rules)

	fmt.Println("=== Color Game Return To Player ===")
	fmt.Printf("single base %s, pair %s, bonus x%s, bonus set size %d\n\n",
		rules.SingleBaseMultiplier, rules.PairMultiplier, rules.BonusFactor, rules.BonusSetSize)

	exact := ExactRTP(payout, rules.BonusSetSize)
	for _, sel := range sortedSelections(exact) {
		fmt.Printf("  %-4s exact RTP %6.2f%%\n", sel, exact[sel]*100)
	}

	sim, err := Simulate(payout, rules.BonusSetSize, *rounds, infrastructure.CryptoRandom{})
	if err != nil {
		log.WithError(err).Fatal("Simulation failed")
	}

	fmt.Printf("\nSimulated %d rounds\n", *rounds)
	for _, sel := range sortedSelections(sim.RTP) {
		fmt.Printf("  %-4s simulated RTP %6.2f%% (exact %6.2f%%)\n", sel, sim.RTP[sel]*100, exact[sel]*100)
	}

	fmt.Printf("\nSymbol frequencies, chi-squared %.2f (below 11.07 at 95%% with 5 df)\n", sim.ChiSquared)
	for sym := entities.MinSymbol; sym <= entities.MaxSymbol; sym++ {
		fmt.Printf("  %-6s %d\n", sym.Name(), sim.SymbolCounts[sym])
	}
}

// Selections lists every single and pair a player can bet on
func Selections() []entities.Selection {
	var out []entities.Selection
	for a := entities.MinSymbol; a <= entities.MaxSymbol; a++ {
		out = append(out, entities.Single(a))
	}
	for a := entities.MinSymbol; a <= entities.MaxSymbol; a++ {
		for b := a + 1; b <= entities.MaxSymbol; b++ {
			out = append(out, entities.Pair(a, b))
		}
	}
	return out
}

// ExactRTP averages the multiplier of every selection over all 216 outcomes,
// weighting the bonus by the chance its id lands in the bonus set
func ExactRTP(payout *services.PayoutRules, bonusSetSize int) map[string]float64 {
	one := decimal.NewFromInt(1)
	bonusChance := float64(bonusSetSize) / float64(entities.MaxBonusID)
	out := make(map[string]float64)

	for _, sel := range Selections() {
		var plain, boosted float64
		n := 0
		for a := entities.MinSymbol; a <= entities.MaxSymbol; a++ {
			for b := entities.MinSymbol; b <= entities.MaxSymbol; b++ {
				for c := entities.MinSymbol; c <= entities.MaxSymbol; c++ {
					outcome := entities.Outcome{a, b, c}
					plain += payout.Evaluate(sel, one, outcome, nil).Multiplier.InexactFloat64()
					boosted += payout.Evaluate(sel, one, outcome, entities.BonusSet{sel.BonusID()}).Multiplier.InexactFloat64()
					n++
				}
			}
		}
		out[sel.String()] = ((1-bonusChance)*plain + bonusChance*boosted) / float64(n)
	}
	return out
}

// Intner is the random source the simulation draws from
type Intner interface {
	Intn(n int) (int, error)
}

// SimulationResult is the outcome of a simulated run
type SimulationResult struct {
	RTP          map[string]float64
	SymbolCounts map[entities.Symbol]int
	ChiSquared   float64
}

// Simulate draws rounds the way a room does and stakes one unit on every selection
func Simulate(payout *services.PayoutRules, bonusSetSize, rounds int, random Intner) (*SimulationResult, error) {
	one := decimal.NewFromInt(1)
	selections := Selections()
	returned := make(map[string]float64, len(selections))
	counts := make(map[entities.Symbol]int)

	for i := 0; i < rounds; i++ {
		bonus, err := drawBonus(random, bonusSetSize)
		if err != nil {
			return nil, err
		}
		outcome := make(entities.Outcome, entities.OutcomeLength)
		for j := range outcome {
			v, err := random.Intn(int(entities.MaxSymbol))
			if err != nil {
				return nil, err
			}
			outcome[j] = entities.Symbol(v + 1)
			counts[outcome[j]]++
		}

		for _, sel := range selections {
			returned[sel.String()] += payout.Evaluate(sel, one, outcome, bonus).WinAmount.InexactFloat64()
		}
	}

	res := &SimulationResult{RTP: make(map[string]float64), SymbolCounts: counts}
	for sel, total := range returned {
		res.RTP[sel] = total / float64(rounds)
	}

	expected := float64(rounds*entities.OutcomeLength) / float64(entities.MaxSymbol)
	for sym := entities.MinSymbol; sym <= entities.MaxSymbol; sym++ {
		res.ChiSquared += math.Pow(float64(counts[sym])-expected, 2) / expected
	}
	return res, nil
}

func drawBonus(random Intner, size int) (entities.BonusSet, error) {
	ids := make([]int, entities.MaxBonusID)
	for i := range ids {
		ids[i] = i + 1
	}
	// partial Fisher-Yates keeps the ids distinct
	for i := 0; i < size && i < len(ids); i++ {
		j, err := random.Intn(len(ids) - i)
		if err != nil {
			return nil, err
		}
		ids[i], ids[i+j] = ids[i+j], ids[i]
	}
	return entities.BonusSet(ids[:min(size, len(ids))]), nil
}

func sortedSelections(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
