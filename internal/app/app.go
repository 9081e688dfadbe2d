package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/handlers"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/notify"
	"github.com/ternarybob/vigil/internal/patterns"
	"github.com/ternarybob/vigil/internal/queue"
	"github.com/ternarybob/vigil/internal/services/analysis"
	"github.com/ternarybob/vigil/internal/services/intake"
	"github.com/ternarybob/vigil/internal/services/llm"
	"github.com/ternarybob/vigil/internal/services/runs"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
	"github.com/ternarybob/vigil/internal/workers"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	storage        *badgerstorage.Manager

	// Pattern matching
	Engine *patterns.Engine

	// Queues and worker pools
	LogsQueue   *queue.Manager
	IssuesQueue *queue.Manager
	logsPool    *queue.WorkerPool
	issuesPool  *queue.WorkerPool

	// Services
	Notifier        interfaces.Notifier
	LLMService      interfaces.LLMService
	AnalysisService *analysis.Service
	RunService      *runs.Service
	IntakeService   *intake.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	IngestHandler  *handlers.IngestHandler
	QnAHandler     *handlers.QnAHandler
	LogsHandler    *handlers.LogsHandler
	IssuesHandler  *handlers.IssuesHandler
	ControlHandler *handlers.ControlHandler
	MetricsHandler *handlers.MetricsHandler
	FailedHandler  *handlers.FailedHandler

	maintenance *cron.Cron
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initQueues(); err != nil {
		app.storage.Close()
		return nil, fmt.Errorf("failed to initialize queues: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.storage.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()
	app.startWorkers()

	if cfg.Maintenance.Enabled {
		if err := app.startMaintenance(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start maintenance scheduler")
		}
	}

	logger.Info().
		Int("worker_concurrency", cfg.Queue.Concurrency).
		Str("storage_ttl", cfg.Storage.Badger.TTL).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	storageManager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger, a.Config.StorageTTL())
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.storage = storageManager
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initQueues creates the two persistent queues on the shared badger store
func (a *App) initQueues() error {
	visibility := a.Config.QueueVisibilityTimeout()
	maxReceive := a.Config.Queue.MaxReceive

	logsQueue, err := queue.NewManager(a.storage.DB().Badger(), queue.QueueLogs, visibility, maxReceive)
	if err != nil {
		return fmt.Errorf("failed to create logs queue: %w", err)
	}
	a.LogsQueue = logsQueue

	issuesQueue, err := queue.NewManager(a.storage.DB().Badger(), queue.QueueIssues, visibility, maxReceive)
	if err != nil {
		return fmt.Errorf("failed to create issues queue: %w", err)
	}
	a.IssuesQueue = issuesQueue

	return nil
}

// initServices initializes business services in dependency order
func (a *App) initServices() error {
	a.Engine = patterns.NewEngine(patterns.DefaultRules(), a.Logger)

	a.Notifier = notify.NewWebhookNotifier(
		&a.Config.Notify,
		a.StorageManager.RunStorage(),
		a.Config.NotifyDebounce(),
		a.Logger,
	)

	// LLM is optional: without an API key the analysis service still
	// works, every query takes the deterministic fallback path.
	llmService, err := llm.NewClaudeService(&a.Config.Claude, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service unavailable, analysis will use fallback summaries")
	} else {
		a.LLMService = llmService
	}

	a.AnalysisService = analysis.NewService(&a.Config.Analysis, a.StorageManager, a.LLMService, a.Logger)
	a.RunService = runs.NewService(a.StorageManager, a.Logger)
	a.IntakeService = intake.NewService(a.Config, a.LogsQueue, a.Logger)

	return nil
}

// initHandlers initializes the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.IngestHandler = handlers.NewIngestHandler(a.IntakeService, a.Logger)
	a.QnAHandler = handlers.NewQnAHandler(a.AnalysisService, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.StorageManager, a.Logger)
	a.IssuesHandler = handlers.NewIssuesHandler(a.StorageManager, a.Logger)
	a.ControlHandler = handlers.NewControlHandler(a.RunService, a.Logger)
	a.MetricsHandler = handlers.NewMetricsHandler(a.LogsQueue, a.IssuesQueue, a.StorageManager, a.AnalysisService, a.Logger)
	a.FailedHandler = handlers.NewFailedHandler(a.StorageManager, a.Logger)
}

// startWorkers creates and starts the two worker pools
func (a *App) startWorkers() {
	concurrency := a.Config.Queue.Concurrency
	pollInterval := a.Config.QueuePollInterval()
	failed := a.StorageManager.FailedJobStorage()

	batchWorker := workers.NewBatchWorker(a.StorageManager, a.Engine, a.IssuesQueue, a.Logger)
	a.logsPool = queue.NewWorkerPool(a.LogsQueue, failed, a.Logger, concurrency, pollInterval)
	a.logsPool.RegisterHandler(models.JobTypeLogBatch, batchWorker.Handle)
	a.logsPool.Start()

	issueWorker := workers.NewIssueWorker(a.StorageManager, a.Notifier, a.Logger)
	a.issuesPool = queue.NewWorkerPool(a.IssuesQueue, failed, a.Logger, concurrency, pollInterval)
	a.issuesPool.RegisterHandler(models.JobTypeIssue, issueWorker.Handle)
	a.issuesPool.Start()

	a.Logger.Debug().
		Int("concurrency", concurrency).
		Str("poll_interval", pollInterval.String()).
		Msg("Worker pools started")
}

// startMaintenance schedules periodic badger value log GC and
// failed-job trimming
func (a *App) startMaintenance() error {
	a.maintenance = cron.New()

	_, err := a.maintenance.AddFunc(a.Config.Maintenance.Schedule, func() {
		if err := a.storage.DB().RunValueLogGC(); err != nil {
			a.Logger.Debug().Err(err).Msg("Badger value log GC skipped")
		}

		ctx := context.Background()
		max := a.Config.Queue.MaxFailedRetained
		for _, queueName := range []string{queue.QueueLogs, queue.QueueIssues} {
			trimmed, err := a.StorageManager.FailedJobStorage().TrimFailedJobs(ctx, queueName, max)
			if err != nil {
				a.Logger.Warn().Err(err).Str("queue", queueName).Msg("Failed to trim failed jobs")
				continue
			}
			if trimmed > 0 {
				a.Logger.Debug().Int("trimmed", trimmed).Str("queue", queueName).Msg("Trimmed failed jobs")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", a.Config.Maintenance.Schedule, err)
	}

	a.maintenance.Start()
	a.Logger.Debug().Str("schedule", a.Config.Maintenance.Schedule).Msg("Maintenance scheduler started")
	return nil
}

// Close gracefully shuts down all application components
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.maintenance != nil {
		a.maintenance.Stop()
	}

	if a.logsPool != nil {
		a.logsPool.Stop()
	}
	if a.issuesPool != nil {
		a.issuesPool.Stop()
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
