package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"handraise/internal/api"
	"handraise/internal/config"
	"handraise/internal/docstore"
	"handraise/internal/hub"
	"handraise/internal/jobs"
	"handraise/internal/notifier"
	"handraise/internal/questions"
	"handraise/internal/roster"
	"handraise/internal/session"
	"handraise/internal/websocket"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	store      *docstore.Store
	sessions   *session.Manager
	registry   *websocket.Registry
	hub        *hub.Hub
	redis      *redis.Client
	scheduler  *jobs.Scheduler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store → Managers → Hub → Registry/Handler → API → HTTP → Jobs
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	policy, err := notifier.NewPolicy(cfg.Notifications.SuppressRule)
	if err != nil {
		return nil, fmt.Errorf("invalid notification rule: %w", err)
	}

	// STEP 1: Open the document store (migrations run inside)
	store, err := docstore.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	log.Printf("Document store ready: driver=%s", store.Name())

	// STEP 2: Classroom managers share the store
	sessions := session.NewManager(store)
	ledger := roster.NewLedger(store)
	queue := questions.NewQueue(store)

	// STEP 3: Dispatch hub decouples notification delivery from feeds
	dispatch := hub.NewHub(cfg.Notifications.HubQueueSize)

	// STEP 4: Optional redis holding each teacher's recently shown notification tags
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// STEP 5: Observer registry and WebSocket handler
	registry := websocket.NewRegistry()
	handlerOpts := []websocket.HandlerOption{
		websocket.WithHub(dispatch),
		websocket.WithPolicy(policy),
		websocket.WithHeartbeat(cfg.WebSocket.PingInterval, cfg.WebSocket.PongWait),
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, websocket.WithRedis(redisClient))
	}
	if cfg.Notifications.LogDeliveries {
		handlerOpts = append(handlerOpts, websocket.WithDeliveryLog())
	}
	wsHandler := websocket.NewHandler(registry, sessions, ledger, queue, handlerOpts...)

	// STEP 6: API server with the observer endpoint mounted
	limiter := api.NewRateLimiter(cfg.HTTP.RateLimit, time.Minute)
	apiServer := api.NewServer(store, sessions, ledger, queue, registry,
		api.WithWebSocket(http.HandlerFunc(wsHandler.HandleWebSocket)),
		api.WithRateLimiter(limiter))

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:           apiServer,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	// STEP 7: Maintenance jobs
	scheduler := jobs.NewScheduler()
	autoCloser := jobs.NewAutoCloser(sessions, cfg.Jobs.MaxClassDuration, jobs.WithOnClosed(registry.ClassClosed))
	if err := scheduler.Add("auto-close", cfg.Jobs.AutoCloseSchedule, autoCloser.Run); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := scheduler.Add("rate-limiter-cleanup", cfg.Jobs.CleanupSchedule, func(context.Context) {
		limiter.Cleanup()
	}); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Application{
		config:     cfg,
		store:      store,
		sessions:   sessions,
		registry:   registry,
		hub:        dispatch,
		redis:      redisClient,
		scheduler:  scheduler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to deliver notifications, then HTTP accepts observers,
// then the scheduler begins sweeping
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatch hub: %w", err)
	}

	if app.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			// FUNCTIONAL DISCOVERY: Dedup fails open, so a missing redis only costs duplicates
			log.Printf("Redis unreachable at %s, notifications will not be deduplicated: %v", app.config.Redis.Addr, err)
		}
		cancel()
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	if err := app.scheduler.Start(); err != nil {
		log.Printf("Job scheduler start error: %v", err)
	}

	log.Printf("Handraise application started on %s", listener.Addr())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: Jobs → HTTP → Observers → Hub → Redis → Store
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Handraise application")

	var errs []error
	if err := app.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// TECHNICAL DISCOVERY: Shutdown does not touch hijacked WebSocket connections
	if n := app.registry.CloseAll(); n > 0 {
		log.Printf("Closed %d observer connections", n)
	}

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("dispatch hub shutdown: %w", err))
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if err := app.store.Close(); err != nil {
		errs = append(errs, err)
	}

	log.Printf("Handraise application shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the address the server listens on
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
