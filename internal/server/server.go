// Package server wires all components and creates the MCP server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on small
// interfaces. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HendryAvila/vibe-check/internal/admin"
	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/breaker"
	"github.com/HendryAvila/vibe-check/internal/cache"
	"github.com/HendryAvila/vibe-check/internal/config"
	"github.com/HendryAvila/vibe-check/internal/degradation"
	"github.com/HendryAvila/vibe-check/internal/ghclient"
	"github.com/HendryAvila/vibe-check/internal/health"
	"github.com/HendryAvila/vibe-check/internal/jobstore"
	"github.com/HendryAvila/vibe-check/internal/mentor"
	"github.com/HendryAvila/vibe-check/internal/monitor"
	"github.com/HendryAvila/vibe-check/internal/patterns"
	"github.com/HendryAvila/vibe-check/internal/prompts"
	"github.com/HendryAvila/vibe-check/internal/resources"
	"github.com/HendryAvila/vibe-check/internal/routing"
	"github.com/HendryAvila/vibe-check/internal/sampling"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
	"github.com/HendryAvila/vibe-check/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server is the assembled application: the MCP server plus the background
// loops and admin endpoints that support it.
type Server struct {
	MCP *server.MCPServer

	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	telemetry *telemetry.Collector
	queue     *analysis.Queue
	workers   *analysis.WorkerManager
	monitor   *monitor.Monitor
	health    *health.Monitor
	service   *analysis.Service

	closers []func() error
	wg      sync.WaitGroup
}

// New builds every component from cfg and registers tools, prompts and
// resources. Optional subsystems (job store, Redis mirror) that fail to
// initialize are logged and skipped; the server still works without them.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &Server{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	detector := patterns.NewDetector()

	// --- Mentor pipeline ---

	samplingBreaker := breaker.New("sampling", cfg.Breaker)
	responses := cache.NewLRU[sampling.DynamicResponse](cfg.Cache.MaxSize, cfg.Cache.TTL)
	app.telemetry = telemetry.NewCollector(cfg.Telemetry,
		telemetry.WithLogger(logger),
		telemetry.WithBreaker(samplingBreaker),
		telemetry.WithCache(responses),
		telemetry.WithExporter(telemetry.NewPrometheusExporter(app.registry)),
	)
	router := routing.NewRouter(cfg.Router, app.telemetry, logger)
	generator := sampling.NewClient(cfg.Sampling, sampling.MCPSampler{}, samplingBreaker, logger)
	engine := mentor.New(cfg.Mentor, mentor.Deps{
		Router:    router,
		Generator: generator,
		Responses: responses,
		Recorder:  app.telemetry,
		Detector:  detector,
		Logger:    logger,
	})

	// --- Async analysis ---

	queueOpts := []analysis.QueueOption{
		analysis.WithMetrics(analysis.NewMetrics(app.registry)),
		analysis.WithQueueLogger(logger),
	}
	if store := app.openStore(); store != nil {
		queueOpts = append(queueOpts, analysis.WithHistoryStore(store))
	}
	if mirror := app.openMirror(); mirror != nil {
		queueOpts = append(queueOpts, analysis.WithStatusMirror(mirror))
	}
	app.queue = analysis.NewQueue(cfg.Queue, queueOpts...)

	app.monitor = monitor.New(cfg.Resources.Limits,
		monitor.GopsutilSampler{DiskPath: cfg.Resources.DiskPath},
		monitor.WithLogger(logger),
		monitor.WithInterval(cfg.Resources.Interval),
	)

	gh, err := ghclient.New(cfg.GitHub, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating github client: %w", err)
	}
	app.workers = analysis.NewWorkerManager(cfg.Workers, analysis.WorkerDeps{
		Queue:    app.queue,
		Files:    gh,
		Analyzer: analysis.PatternAnalyzer{Detector: detector},
		Registry: app.monitor,
		Logger:   logger,
	})
	app.service = analysis.NewService(analysis.ServiceDeps{
		Queue:     app.queue,
		Admission: app.monitor,
		Workers:   app.workers,
		Resources: app.monitor,
		Detector:  detector,
		Logger:    logger,
	})
	degrader := degradation.New(cfg.Degradation, app.service, degradation.WithLogger(logger))

	hcfg := cfg.Health
	hcfg.ExpectedWorkers = cfg.Workers.MaxConcurrentWorkers
	app.health = health.New(hcfg, health.Deps{
		Queue:     app.queue,
		Workers:   app.workers,
		Resources: app.monitor,
		API:       gh,
	}, health.WithLogger(logger))

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"vibe-check",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	s.EnableSampling()

	// --- Register tools ---

	mentorTool := tools.NewMentorTool(engine, cfg.Sampling.MaxWorkspaceChars)
	s.AddTool(mentorTool.Definition(), mentorTool.Handle)

	startTool := tools.NewStartAnalysisTool(app.service, degrader)
	s.AddTool(startTool.Definition(), startTool.Handle)

	statusTool := tools.NewStatusTool(app.service, degrader)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	systemTool := tools.NewSystemStatusTool(app.health, degrader, app.telemetry)
	s.AddTool(systemTool.Definition(), systemTool.Handle)

	// --- Register prompts ---

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	reviewPrompt := prompts.NewReviewPRPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(app.health, app.telemetry)
	s.AddResource(resourceHandler.HealthResource(), resourceHandler.HandleHealth)
	s.AddResource(resourceHandler.TelemetryResource(), resourceHandler.HandleTelemetry)

	app.MCP = s
	return app, nil
}

func (a *Server) openStore() analysis.HistoryStore {
	if a.cfg.Store.DataDir == "" {
		return nil
	}
	store, err := jobstore.New(a.cfg.Store)
	if err != nil {
		a.logger.Warn("job history persistence disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, store.Close)
	return store
}

func (a *Server) openMirror() analysis.StatusMirror {
	if a.cfg.Redis.URL == "" {
		return nil
	}
	mirror, err := cache.NewRedisStatusMirror(a.cfg.Redis.URL)
	if err != nil {
		a.logger.Warn("redis status mirror disabled", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mirror.Ping(ctx); err != nil {
		a.logger.Warn("redis status mirror disabled", "error", err)
		_ = mirror.Close()
		return nil
	}
	a.closers = append(a.closers, mirror.Close)
	return mirror
}

// AdminHandler returns the admin HTTP handler.
func (a *Server) AdminHandler() http.Handler {
	return admin.NewRouter(admin.Dependencies{
		Health:    a.health,
		Telemetry: a.telemetry,
		Jobs:      a.service,
		Gatherer:  a.registry,
		Logger:    a.logger,
	})
}

// Start launches the workers and background loops. They stop when ctx is
// done; call Close afterwards to wait for them and release resources.
func (a *Server) Start(ctx context.Context) {
	a.workers.Start(ctx)

	loops := []func(context.Context){a.monitor.Run, a.queue.RunCleanup, a.health.Run}
	if addr := a.cfg.Admin.Addr; addr != "" {
		h := a.AdminHandler()
		loops = append(loops, func(ctx context.Context) {
			if err := admin.Serve(ctx, addr, h, a.logger); err != nil {
				a.logger.Error("admin server stopped", "error", err)
			}
		})
	}
	for _, run := range loops {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			run(ctx)
		}()
	}
}

// Close stops the workers, waits for background loops and closes stores.
// It is safe to call on a partially built Server.
func (a *Server) Close() {
	if a.workers != nil {
		a.workers.Stop()
	}
	a.wg.Wait()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// ServeStdio runs the MCP server on stdin/stdout until ctx is done or the
// client disconnects.
func (a *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(a.MCP)
	stdio.SetErrorLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// serverInstructions returns the system instructions that tell the AI
// how to use Vibe Check effectively.
func serverInstructions() string {
	return `You have access to Vibe Check, an engineering mentor that flags anti-patterns.

## WHEN TO USE vibe_check_mentor

Call vibe_check_mentor before committing to a plan when the user:
- Proposes new infrastructure, frameworks or abstractions
- Is about to work around a problem instead of fixing its cause
- Keeps adding layers to make something work
- Asks for an architecture, implementation, debugging or review opinion

Pass the session_id from the previous answer to continue a conversation.
Use force_dynamic only when the quick answer was not specific enough.

## PULL REQUESTS

For a pull request, call start_async_analysis with the PR size fields.
- not_suitable: the PR is small; review the diff directly.
- queued_for_async_analysis: poll check_analysis_status with the job_id.
- queue_full or resource_limited: share the immediate analysis and retry later.

## SYSTEM STATUS

vibe_check_system_status reports health, availability and the recommended
analysis strategy for a PR size. When degradation_info.used_fallback is true,
tell the user the answer came from a reduced mode.`
}
