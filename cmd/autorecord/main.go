package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	ethadapter "github.com/ericfisherdev/autorecord/internal/adapter/driven/ethereum"
	sqliteadapter "github.com/ericfisherdev/autorecord/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/autorecord/internal/adapter/driven/vaultfile"
	httphandler "github.com/ericfisherdev/autorecord/internal/adapter/driving/http"
	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"vault_path", cfg.VaultPath,
		"chain_id", cfg.ChainID,
		"scan_interval", cfg.ScanInterval,
		"admin_token_set", cfg.AdminToken != "",
	)
	if cfg.AdminToken == "" {
		slog.Warn("AUTORECORD_ADMIN_TOKEN is empty, admin API is unauthenticated")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire storage adapters.
	candidateStore := sqliteadapter.NewCandidateRepo(db)
	policyStore := sqliteadapter.NewPolicyRepo(db)
	auditStore := sqliteadapter.NewAuditRepo(db)
	secretStore := vaultfile.New(cfg.VaultPath)

	// 6. Connect to the first usable RPC endpoint on the configured chain.
	rpc, rpcURL, err := ethadapter.Dial(ctx, cfg.RPCURLs, cfg.ChainID, cfg.RPCTimeout)
	if err != nil {
		return err
	}
	defer rpc.Close()

	ledger, err := ethadapter.NewClient(rpc, ethadapter.Config{
		ChainID:          cfg.ChainID,
		DonationContract: cfg.DonationContract,
		SpendingContract: cfg.SpendingContract,
		RPCTimeout:       cfg.RPCTimeout,
		FeeMarginPercent: cfg.FeeMarginPercent,
	})
	if err != nil {
		return err
	}

	// 7. Create application services.
	auditLog := application.NewAuditLog(auditStore, nil)
	policySvc, err := application.NewPolicyService(ctx, policyStore, auditLog, nil)
	if err != nil {
		return err
	}

	vault := application.NewVault(secretStore, application.VaultConfig{
		Deriver:         ledger,
		ExpectedAddress: cfg.WalletAddress,
	})
	session := application.NewSessionCache(vault, policySvc, nil)

	metrics := application.NewMetrics(session.Active)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	retry := application.NewRetryPolicy(cfg.MaxRetries, cfg.RetryMinBackoff, cfg.RetryMaxBackoff)
	scanner := application.NewScanner(candidateStore, nil, cfg.AttemptGrace, retry)
	recorder := application.NewRecorder(candidateStore, ledger, session, policySvc, application.RecorderConfig{
		Grace:          cfg.AttemptGrace,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Retry:          retry,
		Metrics:        metrics,
	})

	// 8. Create and start the scan worker.
	worker := application.NewScanWorker(scanner, recorder, policySvc, application.ScanWorkerConfig{
		Interval:    cfg.ScanInterval,
		MaxAge:      cfg.ScanMaxAge,
		Limit:       cfg.ScanLimit,
		Concurrency: cfg.ScanConcurrency,
		Metrics:     metrics,
	})
	workerDone := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(workerDone)
	}()

	candidateSvc := application.NewCandidateService(candidateStore, worker, nil)
	healthSvc := application.NewHealthService(vault, session, policySvc, func() (uint, bool, error) {
		return sqliteadapter.SchemaVersion(db.Reader)
	})

	// 9. Create HTTP handler with middleware.
	apiHandler := httphandler.NewHandler(httphandler.Services{
		Candidates: candidateSvc,
		Recorder:   recorder,
		Worker:     worker,
		Policy:     policySvc,
		Session:    session,
		Health:     healthSvc,
		Audit:      auditLog,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, httphandler.Options{
		AdminToken:    cfg.AdminToken,
		ExplorerTxURL: cfg.ExplorerTxURL,
	}, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// An operator-triggered scan reports its outcomes, so it may wait out
		// a full confirmation timeout.
		WriteTimeout: cfg.ConfirmTimeout + cfg.RPCTimeout*3,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("autorecord started",
		"listen_addr", cfg.ListenAddr,
		"rpc_url", rpcURL,
		"policy_mode", policySvc.Current().Mode,
		"policy_enabled", policySvc.Current().Enabled,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	apiHandler.Close()

	// In-flight recordings finish or abandon their attempt before the
	// database closes; abandoned attempts are recovered on the next start.
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		slog.Warn("scan worker did not stop before shutdown deadline")
	}
	session.Lock()

	slog.Info("shutdown complete")
	return nil
}
