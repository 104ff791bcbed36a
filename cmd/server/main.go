package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/cleaning"
	"onboarding-gateway/internal/onboarding/document"
	"onboarding-gateway/internal/onboarding/otp"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/platform/config"
	"onboarding-gateway/internal/platform/db"
	"onboarding-gateway/internal/platform/httpserver"
	"onboarding-gateway/internal/platform/logger"
	"onboarding-gateway/internal/platform/metrics"
	platformredis "onboarding-gateway/internal/platform/redis"
	"onboarding-gateway/internal/provider"
	providermock "onboarding-gateway/internal/provider/mock"
	"onboarding-gateway/internal/scheduler"
	"onboarding-gateway/internal/scheduler/jobs"
	"onboarding-gateway/internal/scheduler/lock"
	"onboarding-gateway/internal/statemachine"
	httptransport "onboarding-gateway/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "onboarding-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	registry := metrics.NewRegistry()

	stores, pool, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditor, auditWorker, err := buildAuditPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	documentVendor, presenceVendor, evaluationVendor, err := buildProviders(cfg, log)
	if err != nil {
		return err
	}

	limits := process.Limits{
		MaxErrorScore:                  cfg.Verification.MaxErrorScore,
		MaxIdentityVerifications:       cfg.Verification.MaxIdentityVerifications,
		MaxProcessesPerDay:             cfg.Onboarding.MaxProcessesPerDay,
		ScoreActivationOtpFailed:       cfg.Verification.ScoreActivationOtpFailed,
		ScoreUserVerificationOtpFailed: cfg.Verification.ScoreUserVerificationOtpFailed,
		ScoreIdentityVerificationReset: cfg.Verification.ScoreIdentityVerificationReset,
		ScoreClientEvaluationFailed:    cfg.Verification.ScoreClientEvaluationFailed,
	}
	processes, err := process.New(stores.Processes, stores.Verifications, limits,
		process.WithAuditPublisher(auditor), process.WithLogger(log))
	if err != nil {
		return err
	}
	otps, err := otp.New(stores, processes, limits, otp.Config{
		Length:            cfg.Onboarding.OtpLength,
		Expiration:        cfg.Onboarding.OtpExpiration,
		ResendPeriod:      cfg.Onboarding.OtpResendPeriod,
		MaxFailedAttempts: cfg.Onboarding.OtpMaxFailedAttempts,
	}, otp.WithAuditPublisher(auditor), otp.WithLogger(log))
	if err != nil {
		return err
	}
	documents := document.New(stores, documentVendor, auditor, log)

	features := statemachine.Features{
		PresenceCheckEnabled:   cfg.Verification.PresenceCheckEnabled,
		OtpVerificationEnabled: cfg.Verification.OtpVerificationEnabled,
	}
	guards := statemachine.NewGuards(stores.Documents, stores.Otps, features)
	actions := statemachine.NewActions(stores, processes, otps, documentVendor, presenceVendor, features, auditor, log)
	engine := statemachine.NewEngine(
		statemachine.DefaultTable(guards, actions),
		stores, log, statemachine.NewMetrics(registry))

	reconcilers := jobs.New(stores, engine, processes, documentVendor, evaluationVendor, auditor, log)
	cleaner := cleaning.New(stores, cleaning.Config{
		ActivationExpiration:   cfg.Onboarding.ActivationExpiration,
		VerificationExpiration: cfg.Verification.Expiration,
		ProcessExpiration:      cfg.Onboarding.ProcessExpiration,
		OtpExpiration:          cfg.Onboarding.OtpExpiration,
		DataRetention:          cfg.Verification.DataRetention,
	}, auditor, log)

	runner := scheduler.NewRunner(leaseStore(redisClient), log, scheduler.NewMetrics(registry))
	if err := registerJobs(runner, cfg.Scheduler, reconcilers, cleaner); err != nil {
		return err
	}

	handler := httptransport.NewHandler(stores, processes, otps, documents, engine, documentVendor, log)
	router := httptransport.NewRouter(handler, []byte(cfg.HTTP.AuthSigningKey))

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/healthz", healthHandler(pool, redisClient))

	server := httpserver.New(cfg.HTTP, mux)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting onboarding gateway", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return auditWorker.Run(groupCtx)
	})
	group.Go(func() error {
		runner.Start()
		<-groupCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return runner.Stop(stopCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("onboarding gateway stopped")
	return nil
}

// openStores connects the persistence layer. DATABASE_DSN=memory keeps
// everything in process for local development.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "memory" {
		log.Warn("using in-memory stores, data is not persisted")
		return store.NewMemory().Stores(), nil, nil
	}
	pool, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return store.Stores{}, nil, err
	}
	if err := store.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return store.Stores{}, nil, err
	}
	return store.PostgresStores(pool), pool, nil
}

func buildAuditPipeline(ctx context.Context, cfg config.Config, log *zap.Logger) (*audit.Publisher, *audit.Worker, error) {
	publisher := audit.NewPublisher(1024, log)

	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, 1)
		if err != nil {
			return nil, nil, fmt.Errorf("build kafka audit sink: %w", err)
		}
		sink = kafkaSink
	} else {
		log.Info("no kafka brokers configured, audit trail goes to the log")
		sink = audit.NewLogSink(log)
	}
	return publisher, audit.NewWorker(sink, publisher.Inbox(), log), nil
}

func buildProviders(cfg config.Config, log *zap.Logger) (provider.DocumentProvider, provider.PresenceProvider, provider.EvaluationProvider, error) {
	if cfg.Provider.Document != "mock" {
		return nil, nil, nil, fmt.Errorf("unsupported document provider %q", cfg.Provider.Document)
	}
	if cfg.Provider.Presence != "mock" {
		return nil, nil, nil, fmt.Errorf("unsupported presence provider %q", cfg.Provider.Presence)
	}
	if cfg.Provider.Evaluation != "mock" {
		return nil, nil, nil, fmt.Errorf("unsupported evaluation provider %q", cfg.Provider.Evaluation)
	}
	documents := providermock.NewDocumentProvider(cfg.Provider.MockAsync, []byte(cfg.Provider.SdkSigningKey), log)
	presence := providermock.NewPresenceProvider(log)
	evaluation := providermock.NewEvaluationProvider(log)
	return documents, presence, evaluation, nil
}

func leaseStore(client *platformredis.Client) lock.Store {
	if client == nil {
		return lock.NewMemoryStore()
	}
	return lock.NewRedisStore(client.Client)
}

func registerJobs(runner *scheduler.Runner, cfg config.SchedulerConfig, reconcilers *jobs.Jobs, cleaner *cleaning.Service) error {
	entries := []struct {
		name string
		spec string
		job  lock.Job
	}{
		{jobs.LockDocumentSubmitCheck, cfg.DocumentSubmitCheckCron, reconcilers.CheckDocumentSubmits},
		{jobs.LockDocumentSubmitVerifications, cfg.DocumentSubmitVerificationsCron, reconcilers.CheckSubmitVerifications},
		{jobs.LockDocumentVerifications, cfg.DocumentVerificationsCron, reconcilers.CheckDocumentVerifications},
		{jobs.LockClientEvaluations, cfg.ClientEvaluationsCron, reconcilers.EvaluateClients},
		{jobs.LockStateMachineNudge, cfg.NudgeCron, reconcilers.NudgeVerifications},
		{cleaning.LockProcessCleaning, cfg.CleaningCron, func(ctx context.Context) error {
			if err := cleaner.TerminateExpiredProcessActivations(ctx); err != nil {
				return err
			}
			if err := cleaner.TerminateExpiredProcessVerifications(ctx); err != nil {
				return err
			}
			if err := cleaner.TerminateExpiredProcesses(ctx); err != nil {
				return err
			}
			return cleaner.TerminateExpiredIdentityVerifications(ctx)
		}},
		{cleaning.LockOtpCleaning, cfg.CleaningCron, cleaner.TerminateExpiredOtpCodes},
		{cleaning.LockDocumentCleaning, cfg.CleaningCron, cleaner.TerminateExpiredDocumentVerifications},
		{cleaning.LockLargeDocumentData, cfg.RetentionCleaningCron, cleaner.CleanupDocumentPayloads},
		{cleaning.LockActivationCleaning, cfg.RetentionCleaningCron, cleaner.CleanupActivations},
	}
	for _, entry := range entries {
		if err := runner.Register(entry.name, entry.spec, entry.job); err != nil {
			return err
		}
	}
	return nil
}

func healthHandler(pool *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}
