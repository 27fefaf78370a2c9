package cmd

import (
	"context"
	"fmt"
	"time"

	"colorgame/application"
	"colorgame/config"
	"colorgame/database"
	"colorgame/domain/entities"
	"colorgame/domain/interfaces"
	"colorgame/domain/services"
	"colorgame/infrastructure"
	"colorgame/infrastructure/observability"
	"colorgame/repository"
	"colorgame/socket"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	configureLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting color game server...")

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.WithError(err).Warn("Metrics disabled")
	}
	metrics := observability.GetMetrics()

	// Initialize database connection
	log.Info("Running database migrations...")
	if err := database.RunMigrationsWithURL(cfg.GetDatabaseURL()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Initialize redis session cache
	log.WithField("addr", cfg.RedisAddr).Info("Connecting to redis...")
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	sessions := infrastructure.NewRedisSessionStore(rdb, cfg.SessionTTL)

	// Initialize NATS credit queue
	log.Info("Connecting to NATS...")
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers, metrics)
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsClient.Close()
	creditQueue := infrastructure.NewCreditQueue(natsClient)
	if err := creditQueue.EnsureStream(); err != nil {
		return fmt.Errorf("failed to set up credit stream: %w", err)
	}

	// Upstream operator service
	walletClient := infrastructure.NewHTTPWalletClient(cfg.ServiceBaseURL, cfg.DebitTimeout)
	identity := infrastructure.NewHTTPIdentityClient(cfg.ServiceBaseURL, cfg.DebitTimeout)

	var audit interfaces.AuditIndexer
	if cfg.ElasticsearchURL != "" {
		es, err := infrastructure.NewElasticsearchAudit(cfg.ElasticsearchURL, "")
		if err != nil {
			return fmt.Errorf("failed to create audit indexer: %w", err)
		}
		audit = es
		log.WithField("url", cfg.ElasticsearchURL).Info("Settlement audit indexing enabled")
	}

	// Initialize repositories
	roundRepo := repository.NewRoundRepository(db)
	betRepo := repository.NewBetRepository(db)
	failedRepo := repository.NewFailedBetRepository(db)
	templateRepo := repository.NewRoomTemplateRepository(db)
	uowFactory := repository.NewUnitOfWorkFactory(db)

	// Initialize services
	log.Info("Initializing services...")
	rules := cfg.GameRules()
	clock := infrastructure.SystemClock{}
	hub := socket.NewHub()

	// Built-in rooms stay in place until templates load
	catalog := services.NewRoomCatalog(templateRepo, entities.DefaultRooms())
	if err := catalog.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Using built-in rooms")
	}

	ledger := services.NewBetLedger(rules.AllowRepeatBets)
	gateway := services.NewWalletGateway(walletClient, creditQueue, cfg.DebitTimeout, clock, metrics)
	stats := services.NewStatsService(roundRepo, rules.HistorySize)
	if err := stats.Seed(ctx); err != nil {
		log.WithError(err).Warn("Starting with empty history")
	}

	settlement := services.NewSettlementService(services.SettlementDeps{
		Ledger:      ledger,
		Rules:       services.NewPayoutRules(rules),
		Wallet:      gateway,
		Sessions:    sessions,
		Broadcaster: hub,
		UnitOfWork:  uowFactory,
		Audit:       audit,
		Stats:       stats,
		Metrics:     metrics,
		Clock:       clock,
	})

	// Finish whatever a previous process left unsettled before taking bets
	report, err := services.NewRecoveryService(betRepo, roundRepo, settlement).Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	log.WithFields(log.Fields{
		"rounds":    report.Rounds,
		"refunded":  report.Refunded,
		"resettled": report.Resettled,
		"skipped":   report.Skipped,
	}).Info("Recovery complete")

	registry := services.NewRoundRegistry()
	lobby := services.NewLobbyService(identity, sessions, catalog, registry, ledger, stats, clock)
	betting := services.NewBettingService(services.BettingDeps{
		Rules:    rules,
		Clock:    clock,
		Sessions: sessions,
		Catalog:  catalog,
		Rounds:   registry,
		Ledger:   ledger,
		Wallet:   gateway,
		Bets:     betRepo,
		Failed:   failedRepo,
		Metrics:  metrics,
	})
	log.Info("Services initialized successfully")

	// Background workers
	if err := application.NewCreditWorker(walletClient).Start(natsClient); err != nil {
		return err
	}

	supervisor := application.NewSupervisor(services.RoundMachineDeps{
		Rules:       rules,
		Clock:       clock,
		Random:      infrastructure.CryptoRandom{},
		Broadcaster: hub,
		Ledger:      ledger,
		Settlement:  settlement,
		Stats:       stats,
		Rounds:      roundRepo,
		Metrics:     metrics,
	}, registry, catalog)

	scheduler, err := application.NewScheduler(cfg.CatalogRefreshSchedule, catalog, stats, supervisor)
	if err != nil {
		return err
	}

	roomsCtx, stopRooms := context.WithCancel(ctx)
	defer stopRooms()
	supervisor.Start(roomsCtx)
	scheduler.Start()

	server := socket.NewServer(ctx, socket.Deps{
		Hub:     hub,
		Lobby:   lobby,
		Betting: betting,
		Catalog: catalog,
		Stats:   stats,
		Rounds:  registry,
	})

	// Serve until the context is cancelled
	log.WithField("addr", cfg.HTTPAddr).Info("Color game server is running")
	serveErr := server.ListenAndServe(ctx, cfg.HTTPAddr)

	// Cleanup resources
	log.Info("Shutting down...")
	scheduler.Stop()
	stopRooms()
	supervisor.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down metrics")
	}

	log.Info("Shutdown completed")
	return serveErr
}
