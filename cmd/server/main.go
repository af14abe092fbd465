package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/commguard/commguard/internal/actions"
	"github.com/commguard/commguard/internal/classifier"
	"github.com/commguard/commguard/internal/config"
	"github.com/commguard/commguard/internal/executor"
	"github.com/commguard/commguard/internal/external/identity"
	"github.com/commguard/commguard/internal/external/lark"
	"github.com/commguard/commguard/internal/external/openai"
	"github.com/commguard/commguard/internal/ingest"
	httpadapter "github.com/commguard/commguard/internal/interfaces/http"
	"github.com/commguard/commguard/internal/policy"
	"github.com/commguard/commguard/internal/port"
	"github.com/commguard/commguard/internal/recorder"
	"github.com/commguard/commguard/internal/report"
	"github.com/commguard/commguard/internal/repository"
	"github.com/commguard/commguard/internal/worker"
	"github.com/commguard/commguard/pkg/database"
	"github.com/commguard/commguard/pkg/logging"
)

func main() {
	// Local development credentials; missing file is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting CommGuard",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	violationRepo := repository.NewViolationRepository(db.DB, logger)
	policyRepo := repository.NewPolicyRepository(db, logger)
	executionRepo := repository.NewExecutionRepository(db.DB, logger)
	employeeRepo := repository.NewEmployeeRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)
	// The incident store probes its schema once here; if the probe fails the
	// escalate action degrades to audit logging for the process lifetime.
	incidentRepo := repository.NewIncidentRepository(db.DB, logger)

	// Initialize external clients
	var llm port.TextClassifier
	if cfg.OpenAI.APIKey != "" {
		llm = openai.NewClassifier(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.Temperature,
			cfg.OpenAI.MaxTokens,
			logger,
		)
	} else {
		logger.Warn("OpenAI API key not configured, ambiguous scores will not be escalated")
	}

	larkCfg := lark.Config{
		AppID:      cfg.Lark.AppID,
		AppSecret:  cfg.Lark.AppSecret,
		APITimeout: cfg.Lark.APITimeout,
	}
	notifier := lark.NewNotifier(larkCfg, logger)
	mailer := lark.NewMailer(larkCfg, logger)

	identityClient := identity.NewClient(identity.Config{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
		Timeout: cfg.Identity.Timeout,
	}, logger)
	if !identityClient.Configured() {
		logger.Warn("Identity system not configured, disable_access actions will fail")
	}

	// Initialize the detection pipeline
	riskClassifier := classifier.New(classifier.Config{
		InternalDomains:      cfg.Classifier.InternalDomains,
		AfterHoursStart:      cfg.Classifier.AfterHoursStart,
		AfterHoursEnd:        cfg.Classifier.AfterHoursEnd,
		LLMBandLow:           cfg.Classifier.LLMBandLow,
		LLMBandHigh:          cfg.Classifier.LLMBandHigh,
		LLMTimeout:           cfg.Classifier.LLMTimeout,
		BaselineWindow:       cfg.Classifier.BaselineWindow,
		LargeAttachmentBytes: cfg.Classifier.LargeAttachmentBytes,
	}, llm, violationRepo, logger)

	violationRecorder := recorder.New(recorder.Config{
		Threshold: cfg.Recorder.Threshold,
		Source:    cfg.Recorder.Source,
	}, violationRepo, logger)

	evaluator := policy.NewEvaluator(logger)
	engine := policy.NewEngine(
		policyRepo,
		executionRepo,
		violationRepo,
		evaluator,
		cfg.Classifier.BaselineWindow,
		logger,
	)

	pipeline := ingest.NewService(riskClassifier, violationRecorder, engine, employeeRepo, logger)

	// Register action handlers
	registry := actions.NewRegistry(logger)
	registry.Register(actions.NewEmailAlert(mailer, cfg.Alerts.DefaultRecipients, logger))
	registry.Register(actions.NewEscalateIncident(incidentRepo, auditRepo, logger))
	registry.Register(actions.NewIncreaseMonitoring(employeeRepo, logger))
	registry.Register(actions.NewDisableAccess(identityClient, logger))
	registry.Register(actions.NewLogActivity(auditRepo, logger))
	registry.Register(actions.NewImmediateAlert(
		map[string]port.Notifier{"chat": notifier, "email": mailer},
		cfg.Alerts.DefaultRecipients,
		logger,
	))

	// Initialize the polling executor
	actionExecutor := executor.New(
		executionRepo,
		policyRepo,
		violationRepo,
		employeeRepo,
		auditRepo,
		registry,
		executor.Config{
			PollInterval:    cfg.Executor.PollInterval,
			BatchSize:       cfg.Executor.BatchSize,
			Concurrency:     cfg.Executor.Concurrency,
			ActionTimeout:   cfg.Executor.ActionTimeout,
			StaleClaimAfter: cfg.Executor.StaleClaimAfter,
		},
		logger,
	)

	manager := worker.NewManager(logger)
	manager.Register(actionExecutor)

	// Initialize report exporter
	exporter, err := report.NewExporter(violationRepo, cfg.Reports.OutputDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize report exporter", zap.Error(err))
	}

	// Initialize HTTP server
	handlers := httpadapter.NewHandlers(
		pipeline,
		violationRepo,
		policyRepo,
		executionRepo,
		auditRepo,
		exporter,
		logger,
	)
	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start background workers", zap.Error(err))
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("Shutting down...")
	manager.StopAll()
	logger.Info("Server exited successfully")
}
