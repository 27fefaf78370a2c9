package services

import (
	"time"

	"colorgame/domain/interfaces"

	"github.com/shopspring/decimal"
)

type nopMetrics struct{}

func (nopMetrics) RecordBetPlaced(int, decimal.Decimal)     {}
func (nopMetrics) RecordBetRejected(string)                 {}
func (nopMetrics) RecordDebit(time.Duration, bool)          {}
func (nopMetrics) RecordCredit(string, bool)                {}
func (nopMetrics) RecordRoundCompleted(int, time.Duration)  {}
func (nopMetrics) RecordSettlement(int, int, time.Duration) {}

func metricsOrNop(m interfaces.Metrics) interfaces.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
