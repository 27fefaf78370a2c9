package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"colorgame/config"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the game service. It
// satisfies interfaces.Metrics and silently drops measurements until
// initialized with an exporter.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	reader        sdkmetric.Reader
	initialized   bool
	mu            sync.RWMutex

	betsPlacedCounter      metric.Int64Counter
	betsRejectedCounter    metric.Int64Counter
	betStakeCounter        metric.Float64Counter
	debitDurationHist      metric.Float64Histogram
	creditsCounter         metric.Int64Counter
	roundsCompletedCounter metric.Int64Counter
	roundDurationHist      metric.Float64Histogram
	settlementDurationHist metric.Float64Histogram
	settledBetsCounter     metric.Int64Counter
	natsReceivedCounter    metric.Int64Counter
	natsPublishedCounter   metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{config: cfg}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(dialCtx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Infof("Using OTLP metric exporter: %s", mp.config.OTelOTLPEndpoint)

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
	)
	if err := mp.install(reader); err != nil {
		return err
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// InitializeWithReader wires instruments to a caller-provided reader, such as
// a ManualReader in tests
func (mp *MetricsProvider) InitializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := mp.install(reader); err != nil {
		return err
	}
	mp.initialized = true
	return nil
}

func (mp *MetricsProvider) install(reader sdkmetric.Reader) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	mp.reader = reader
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("colorgame")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	if mp.betsPlacedCounter, err = mp.meter.Int64Counter(BetsPlacedTotal,
		metric.WithDescription("Total number of accepted bets"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create bets placed counter: %w", err)
	}

	if mp.betsRejectedCounter, err = mp.meter.Int64Counter(BetsRejectedTotal,
		metric.WithDescription("Total number of rejected bet placements"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create bets rejected counter: %w", err)
	}

	if mp.betStakeCounter, err = mp.meter.Float64Counter(BetStakeTotal,
		metric.WithDescription("Sum of accepted stakes"),
	); err != nil {
		return fmt.Errorf("failed to create stake counter: %w", err)
	}

	if mp.debitDurationHist, err = mp.meter.Float64Histogram(WalletDebitDuration,
		metric.WithDescription("Duration of synchronous wallet debits in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return fmt.Errorf("failed to create debit duration histogram: %w", err)
	}

	if mp.creditsCounter, err = mp.meter.Int64Counter(WalletCreditsTotal,
		metric.WithDescription("Total number of credits handed to the queue"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create credits counter: %w", err)
	}

	if mp.roundsCompletedCounter, err = mp.meter.Int64Counter(RoundsCompletedTotal,
		metric.WithDescription("Total number of completed rounds"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create rounds counter: %w", err)
	}

	if mp.roundDurationHist, err = mp.meter.Float64Histogram(RoundDuration,
		metric.WithDescription("Wall time of a full round in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create round duration histogram: %w", err)
	}

	if mp.settlementDurationHist, err = mp.meter.Float64Histogram(SettlementDuration,
		metric.WithDescription("Duration of round settlement in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	); err != nil {
		return fmt.Errorf("failed to create settlement duration histogram: %w", err)
	}

	if mp.settledBetsCounter, err = mp.meter.Int64Counter(SettledBetsTotal,
		metric.WithDescription("Total number of settled bets"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create settled bets counter: %w", err)
	}

	if mp.natsReceivedCounter, err = mp.meter.Int64Counter(NATSMessagesReceivedTotal,
		metric.WithDescription("Total number of NATS messages received"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create NATS messages received counter: %w", err)
	}

	if mp.natsPublishedCounter, err = mp.meter.Int64Counter(NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

func (mp *MetricsProvider) RecordBetPlaced(roomID int, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(roomAttr(roomID))
	mp.betsPlacedCounter.Add(context.Background(), 1, attrs)
	mp.betStakeCounter.Add(context.Background(), amount.InexactFloat64(), attrs)
}

func (mp *MetricsProvider) RecordBetRejected(reason string) {
	if !mp.isEnabled() {
		return
	}
	mp.betsRejectedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelReason, reason)),
	)
}

func (mp *MetricsProvider) RecordDebit(duration time.Duration, ok bool) {
	if !mp.isEnabled() {
		return
	}
	mp.debitDurationHist.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(outcomeAttr(ok)),
	)
}

func (mp *MetricsProvider) RecordCredit(kind string, ok bool) {
	if !mp.isEnabled() {
		return
	}
	mp.creditsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelKind, kind), outcomeAttr(ok)),
	)
}

func (mp *MetricsProvider) RecordRoundCompleted(roomID int, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(roomAttr(roomID))
	mp.roundsCompletedCounter.Add(context.Background(), 1, attrs)
	mp.roundDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

func (mp *MetricsProvider) RecordSettlement(roomID int, bets int, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(roomAttr(roomID))
	mp.settledBetsCounter.Add(context.Background(), int64(bets), attrs)
	mp.settlementDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordNATSMessageReceived records a NATS message being received
func (mp *MetricsProvider) RecordNATSMessageReceived(subject string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsReceivedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelSubject, subject)),
	)
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(subject string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelSubject, subject)),
	)
}

// isEnabled reports whether instruments exist to record into
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

func roomAttr(roomID int) attribute.KeyValue {
	return attribute.String(LabelRoom, strconv.Itoa(roomID))
}

func outcomeAttr(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String(LabelOutcome, OutcomeOK)
	}
	return attribute.String(LabelOutcome, OutcomeFailed)
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
