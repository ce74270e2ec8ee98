package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"qr-access-control/internal/audit"
	"qr-access-control/internal/checkpoint"
	"qr-access-control/internal/config"
	"qr-access-control/internal/credential"
	"qr-access-control/internal/logging"
	policyengine "qr-access-control/internal/policy/engine"
	"qr-access-control/internal/security"
	"qr-access-control/internal/seed"
	"qr-access-control/internal/server"
	sessionservice "qr-access-control/internal/session/service"
	staffservice "qr-access-control/internal/staff/service"
	"qr-access-control/internal/store"
	"qr-access-control/internal/telemetry"
	telemetryotel "qr-access-control/internal/telemetry/otel"
	"qr-access-control/internal/telemetry/producer"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "qr-access-control"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:        cfg.OTLPEndpoint,
		Insecure:        cfg.OTLPInsecure,
		ServiceName:     "qr-access-control",
		EventID:         cfg.EventID,
		DirectoryDriver: cfg.DirectoryDriver,
	}, logger)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown failed", zap.Error(err))
		}
	}()

	stores, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	logger.Info("directory opened", zap.String("driver", stores.Driver))

	hasher := security.NewHasher(cfg.BcryptCost)
	if err := seedDirectory(ctx, cfg, stores, hasher, logger); err != nil {
		return err
	}

	var policy policyengine.Evaluator
	if cfg.CheckpointPolicyFile != "" {
		opa, err := policyengine.LoadOPAEvaluator(ctx, cfg.CheckpointPolicyFile)
		if err != nil {
			return fmt.Errorf("checkpoint policy: %w", err)
		}
		policy = opa
		logger.Info("checkpoint policy loaded", zap.String("file", cfg.CheckpointPolicyFile))
	}

	issuer := sessionservice.NewIssuer(stores.Tickets, stores.Sessions, sessionservice.Options{
		EventID:       cfg.EventID,
		TTL:           cfg.SessionLifetime(),
		RefreshWindow: cfg.RefreshWindow(),
		TokenTTL:      cfg.TokenTTL(),
		KeyBytes:      cfg.SessionKeyBytes,
	}, logger)

	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		events = append(events, kafkaProducer)
		defer kafkaProducer.Close()
		logger.Info("kafka telemetry enabled", zap.String("topic", cfg.TelemetryKafkaTopic))
	}

	engine, err := checkpoint.NewEngine(checkpoint.Deps{
		Verifier:         credential.NewVerifier(issuer),
		Tickets:          stores.Tickets,
		Zones:            stores.Tickets,
		Policy:           policy,
		Audit:            audit.NewLogger(stores.Attempts, logger),
		Events:           events,
		Logger:           logger,
		EventID:          cfg.EventID,
		DirectoryTimeout: cfg.DirectoryCallTimeout(),
		MeterProvider:    providers.MeterProvider,
		TracerProvider:   providers.TracerProvider,
	})
	if err != nil {
		return err
	}

	router, err := server.NewRouter(server.Deps{
		Scanner:        engine,
		Sessions:       issuer,
		Staff:          staffservice.NewService(stores.Staff, hasher, logger),
		Attempts:       stores.Attempts,
		AllowedOrigins: cfg.AllowedOrigins(),
		MeterProvider:  providers.MeterProvider,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	go purgeSessions(ctx, issuer, logger)

	srv := server.NewHTTPServer(cfg.HTTPAddr, router)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logging.Addr(cfg.HTTPAddr), logging.EventID(cfg.EventID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http server stopped")
	if kafkaProducer != nil || cfg.OTLPEndpoint != "" {
		// Deferred closes of the producer and providers run after in-flight emits finish.
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	return nil
}

// seedDirectory loads SEED_FILE, or the demo fixture into an empty memory directory.
func seedDirectory(ctx context.Context, cfg *config.Config, stores *store.Stores, hasher *security.Hasher, logger *zap.Logger) error {
	var (
		fixture *seed.Fixture
		err     error
		source  = cfg.SeedFile
	)
	switch {
	case cfg.SeedFile != "":
		fixture, err = seed.LoadFile(cfg.SeedFile)
	case !stores.Persistent():
		source = "demo"
		fixture, err = seed.Demo()
	default:
		return nil
	}
	if err != nil {
		return err
	}
	sum, err := seed.Apply(ctx, fixture, seed.Targets{
		Tickets:     stores.Tickets,
		Checkpoints: stores.Tickets,
		Staff:       stores.Staff,
		Hasher:      hasher,
	})
	if err != nil {
		return err
	}
	logger.Info("directory seeded",
		zap.String("source", source),
		zap.Int("tickets", sum.Tickets),
		zap.Int("zone_checkpoints", sum.ZoneCheckpoints),
		zap.Int("staff", sum.Staff),
	)
	return nil
}

func purgeSessions(ctx context.Context, issuer *sessionservice.Issuer, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := issuer.Purge(ctx); err != nil {
				logger.Warn("session purge failed", zap.Error(err))
			}
		}
	}
}
