package services

import (
	"colorgame/domain/entities"

	"github.com/shopspring/decimal"
)

// PayoutRules evaluates wagers against a drawn outcome. It holds only
// immutable multipliers, so every method is a pure function of its inputs.
type PayoutRules struct {
	singleBase decimal.Decimal
	pair       decimal.Decimal
	bonus      decimal.Decimal
	maxCashout decimal.Decimal
}

// NewPayoutRules creates payout rules from a game rule set
func NewPayoutRules(rules entities.GameRules) *PayoutRules {
	return &PayoutRules{
		singleBase: rules.SingleBaseMultiplier,
		pair:       rules.PairMultiplier,
		bonus:      rules.BonusFactor,
		maxCashout: rules.MaxCashout,
	}
}

// Evaluate scores one selection.
//
// A single wins when its symbol appears anywhere in the outcome and pays the
// base multiplier plus one for every extra occurrence. A pair wins when both
// symbols appear and pays the pair multiplier. A winning selection whose bonus
// id is in the bonus set has its multiplier doubled.
func (p *PayoutRules) Evaluate(selection entities.Selection, stake decimal.Decimal, outcome entities.Outcome, bonusSet entities.BonusSet) entities.SelectionResult {
	result := entities.SelectionResult{
		Selection:  selection,
		Stake:      stake,
		Multiplier: decimal.Zero,
		WinAmount:  decimal.Zero,
		Status:     entities.SettlementLoss,
	}

	var mult decimal.Decimal
	switch selection.Kind() {
	case entities.SelectionSingle:
		count := outcome.Count(selection.First)
		if count == 0 {
			return result
		}
		mult = p.singleBase.Add(decimal.NewFromInt(int64(count - 1)))
	case entities.SelectionPair:
		if !outcome.Contains(selection.First) || !outcome.Contains(selection.Second) {
			return result
		}
		mult = p.pair
	default:
		return result
	}

	if bonusSet.Contains(selection.BonusID()) {
		mult = mult.Mul(p.bonus)
		result.IsBonus = true
	}

	result.Multiplier = mult
	result.WinAmount = stake.Mul(mult).Round(2)
	result.Status = entities.SettlementWin
	return result
}

// EvaluateBet scores every wager of a bet and caps the bet's total payout
func (p *PayoutRules) EvaluateBet(bet *entities.Bet, outcome entities.Outcome, bonusSet entities.BonusSet) *entities.SettlementResult {
	settlement := &entities.SettlementResult{
		Bet:        bet,
		Outcome:    outcome,
		BonusSet:   bonusSet,
		Results:    make([]entities.SelectionResult, 0, len(bet.Wagers)),
		WinAmount:  decimal.Zero,
		Multiplier: decimal.Zero,
		Status:     entities.SettlementLoss,
	}

	for _, w := range bet.Wagers {
		r := p.Evaluate(w.Selection, w.Amount, outcome, bonusSet)
		settlement.Results = append(settlement.Results, r)
		settlement.WinAmount = settlement.WinAmount.Add(r.WinAmount)
		settlement.Multiplier = settlement.Multiplier.Add(r.Multiplier)
	}

	settlement.WinAmount = p.CapPayout(settlement.WinAmount)
	if settlement.WinAmount.IsPositive() {
		settlement.Status = entities.SettlementWin
	}
	return settlement
}

// CapPayout limits a per-bet payout to the configured maximum
func (p *PayoutRules) CapPayout(amount decimal.Decimal) decimal.Decimal {
	if p.maxCashout.IsPositive() && amount.GreaterThan(p.maxCashout) {
		return p.maxCashout
	}
	return amount
}
