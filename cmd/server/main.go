package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/makeasinger/modelgen/internal/auth"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/config"
	"github.com/makeasinger/modelgen/internal/events"
	"github.com/makeasinger/modelgen/internal/handler"
	"github.com/makeasinger/modelgen/internal/logger"
	"github.com/makeasinger/modelgen/internal/middleware"
	"github.com/makeasinger/modelgen/internal/orchestrator"
	"github.com/makeasinger/modelgen/internal/service"
	ws "github.com/makeasinger/modelgen/internal/websocket"
	"github.com/makeasinger/modelgen/internal/worker"
	"github.com/makeasinger/modelgen/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "production")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}
	cancelPing()

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()
	hub := ws.NewHub(log)

	// Provider: Meshy when configured, simulated tasks otherwise
	var provider client.ModelGenerator
	meshyClient := client.NewMeshyClient(&cfg.Meshy, log)
	if meshyClient.IsConfigured() {
		provider = meshyClient
	} else {
		log.Info().Msg("meshy not configured, using simulated provider")
	}
	groqClient := client.NewGroqClient(&cfg.Groq)
	assets := client.NewAssetFetcher(2*time.Minute, cfg.Assets.AllowedHosts...)

	// Archive storage (optional)
	storage, err := client.NewStorage(ctx, cfg.Storage)
	switch {
	case errors.Is(err, client.ErrNotConfigured):
		log.Info().Str("driver", cfg.Storage.Driver).Msg("object storage not configured, archiving disabled")
		storage = nil
	case err != nil:
		log.Warn().Err(err).Str("driver", cfg.Storage.Driver).Msg("object storage not initialized, archiving disabled")
		storage = nil
	}

	// Session events on NATS (optional)
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(&cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("nats not available, session events disabled")
		} else {
			publisher = events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)
		}
	}

	// Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			log.Warn().Err(err).Msg("JWKS verifier not initialized")
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}
	authn := auth.NewAuthenticator(tokenVerifier, cfg.JWT.Secret)

	// Services
	store := service.NewRedisTaskStore(redisClient)
	modelService := service.NewModelService(store, asynqClient, provider, groqClient, assets, log)

	newClient := service.ClientFactory(modelService.TaskClient)
	if cfg.Orchestrator.APIURL != "" {
		log.Info().Str("url", cfg.Orchestrator.APIURL).Msg("sessions use the remote model API")
		newClient = remoteClientFactory(cfg, log)
	}
	sessionService := service.NewSessionService(newClient, hub, publisher, asynqClient, store, service.SessionOptions{
		PollInterval:  cfg.Orchestrator.PollInterval,
		Retention:     cfg.Orchestrator.Retention,
		DefaultLocale: cfg.Orchestrator.DefaultLocale,
		Archive:       storage != nil,
	}, log)
	defer sessionService.Close()

	// Handlers
	modelHandler := handler.NewModelHandler(modelService, validate, log)
	sessionHandler := handler.NewSessionHandler(sessionService, hub, validate)
	authHandler := handler.NewAuthHandler(authn)
	healthHandler := handler.NewHealthHandler(map[string]bool{
		"meshy":   provider != nil,
		"groq":    groqClient.IsConfigured(),
		"storage": storage != nil,
		"nats":    cfg.NATS.URL != "",
		"auth":    authn.Configured(),
	}, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	// Middleware
	var requireAuth, optionalAuth fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info().Msg("gateway mode enabled, using header-based auth")
		requireAuth = middleware.GatewayAuthMiddleware(false)
		optionalAuth = middleware.GatewayAuthMiddleware(true)
	} else {
		authMiddleware := middleware.NewAuthMiddleware(authn)
		requireAuth = authMiddleware.Authenticate()
		optionalAuth = authMiddleware.Optional()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(log),
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Model API
	modelAPI := app.Group("/api/model", optionalAuth)
	modelAPI.Post("/create-task", rateLimiter.ModelLimit(cfg.RateLimit.ModelPerHour), modelHandler.CreateTask)
	modelAPI.Get("/task-status/:taskId", modelHandler.TaskStatus)
	modelAPI.Post("/create-refine", rateLimiter.ModelLimit(cfg.RateLimit.ModelPerHour), modelHandler.CreateRefine)
	modelAPI.Get("/download/:encoded", modelHandler.Download)

	// Session API
	sessions := app.Group("/api/sessions", requireAuth)
	sessions.Post("/", rateLimiter.SessionLimit(cfg.RateLimit.SessionPerHour), sessionHandler.Start)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/cancel", sessionHandler.Cancel)

	// WebSocket routes
	app.Get("/ws/sessions/:id", requireAuth, sessionHandler.Upgrade, sessionHandler.Stream())

	workers := newWorkerServer(cfg, log, redisOpt, store, storage, assets, hub)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Str("provider", modelService.Provider()).Msg("server starting")
		return app.Listen(addr)
	})

	g.Go(func() error {
		return workers.Run()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		workers.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Warn().Err(err).Msg("server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// workerServer runs the asynq mux until Shutdown
type workerServer struct {
	srv  *asynq.Server
	mux  *asynq.ServeMux
	done chan struct{}
}

func newWorkerServer(
	cfg *config.Config,
	log zerolog.Logger,
	redisOpt asynq.RedisClientOpt,
	store service.TaskStore,
	storage client.StorageClient,
	assets *client.AssetFetcher,
	hub *ws.Hub,
) *workerServer {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			service.QueueGenerate: 6,
			service.QueueArchive:  4,
		},
		Logger:   logger.NewAsynqLogger(log),
		LogLevel: logger.AsynqLevel(cfg.Server.LogLevel),
	})

	mux := asynq.NewServeMux()
	stepWait := time.Duration(cfg.Meshy.MockStepWait) * time.Millisecond
	mux.HandleFunc(service.TaskTypeSimulate, worker.NewSimulateWorker(store, stepWait, log).ProcessTask)
	if storage != nil {
		mux.HandleFunc(service.TaskTypeArchive, worker.NewArchiveWorker(store, storage, assets, hub, log).ProcessTask)
	}

	return &workerServer{srv: srv, mux: mux, done: make(chan struct{})}
}

// Run blocks until Shutdown; Start returns as soon as processing begins.
func (w *workerServer) Run() error {
	if err := w.srv.Start(w.mux); err != nil {
		return err
	}
	<-w.done
	return nil
}

func (w *workerServer) Shutdown() {
	w.srv.Shutdown()
	close(w.done)
}

// remoteClientFactory runs sessions against another instance's model API.
// Requests carry a short-lived token for the session owner.
func remoteClientFactory(cfg *config.Config, log zerolog.Logger) service.ClientFactory {
	return func(ownerID string, enhance bool) orchestrator.TaskClient {
		token := ""
		if cfg.JWT.Secret != "" && ownerID != "" {
			t, err := auth.IssueLegacyToken(ownerID, "", cfg.JWT.Secret, time.Hour)
			if err != nil {
				log.Warn().Err(err).Msg("failed to issue model API token")
			}
			token = t
		}
		return client.NewModelAPIClient(cfg.Orchestrator.APIURL, token, log)
	}
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		return response.Error(c, code, response.CodeServiceError, message, nil)
	}
}
