package observability

// Metric name prefixes
const (
	MetricPrefix = "colorgame"
)

// Metric names
const (
	// Bet metrics
	BetsPlacedTotal   = MetricPrefix + ".bets.placed_total"
	BetsRejectedTotal = MetricPrefix + ".bets.rejected_total"
	BetStakeTotal     = MetricPrefix + ".bets.stake_total"

	// Wallet metrics
	WalletDebitDuration = MetricPrefix + ".wallet.debit_duration"
	WalletCreditsTotal  = MetricPrefix + ".wallet.credits_total"

	// Round metrics
	RoundsCompletedTotal = MetricPrefix + ".rounds.completed_total"
	RoundDuration        = MetricPrefix + ".rounds.duration"
	SettlementDuration   = MetricPrefix + ".settlement.duration"
	SettledBetsTotal     = MetricPrefix + ".settlement.bets_total"

	// NATS metrics
	NATSMessagesReceivedTotal  = MetricPrefix + ".nats.messages_received_total"
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelRoom    = "room_id"
	LabelReason  = "reason"
	LabelKind    = "kind"
	LabelOutcome = "outcome"
	LabelSubject = "subject"
)

// Outcome label values
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)
