package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/makeasinger/modelgen/internal/auth"
	"github.com/makeasinger/modelgen/internal/client"
	"github.com/makeasinger/modelgen/internal/config"
	"github.com/makeasinger/modelgen/internal/handler"
	"github.com/makeasinger/modelgen/internal/middleware"
	"github.com/makeasinger/modelgen/internal/service"
	ws "github.com/makeasinger/modelgen/internal/websocket"
	"github.com/makeasinger/modelgen/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testRedisAddr = "localhost:6379"
	testRedisDB   = 15 // use DB 15 for tests to avoid collision
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	sessions *service.SessionService
}

// setupApp wires the app like main.go with the simulated provider and an
// in-process worker. Tests are skipped when Redis is not running.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{Addr: testRedisAddr, DB: testRedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	redisOpt := asynq.RedisClientOpt{Addr: testRedisAddr, DB: testRedisDB}
	asynqClient := asynq.NewClient(redisOpt)
	t.Cleanup(func() { asynqClient.Close() })

	log := zerolog.Nop()
	validate := validator.New()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := ws.NewHub(log)
	go hub.Run(hubCtx)
	t.Cleanup(stopHub)

	// External clients — all unconfigured so the simulated provider runs
	groqClient := client.NewGroqClient(&config.GroqConfig{})
	store := service.NewRedisTaskStore(redisClient)
	modelService := service.NewModelService(store, asynqClient, nil, groqClient, nil, log)
	sessionService := service.NewSessionService(modelService.TaskClient, hub, nil, asynqClient, store, service.SessionOptions{
		PollInterval: 20 * time.Millisecond,
		Retention:    time.Minute,
	}, log)
	t.Cleanup(sessionService.Close)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{service.QueueGenerate: 1},
		Logger:      asynqNop{},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeSimulate, worker.NewSimulateWorker(store, time.Millisecond, log).ProcessTask)
	if err := srv.Start(mux); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	authn := auth.NewAuthenticator(nil, testJWTSecret)
	authMiddleware := middleware.NewAuthMiddleware(authn)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	modelHandler := handler.NewModelHandler(modelService, validate, log)
	sessionHandler := handler.NewSessionHandler(sessionService, hub, validate)
	authHandler := handler.NewAuthHandler(authn)
	healthHandler := handler.NewHealthHandler(map[string]bool{
		"meshy": false,
		"auth":  true,
	}, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	app := fiber.New()
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)
	app.Get("/auth/verify", authHandler.Verify)

	// Use very high rate limits so tests don't get blocked
	modelAPI := app.Group("/api/model", authMiddleware.Optional())
	modelAPI.Post("/create-task", rateLimiter.ModelLimit(10000), modelHandler.CreateTask)
	modelAPI.Get("/task-status/:taskId", modelHandler.TaskStatus)
	modelAPI.Post("/create-refine", rateLimiter.ModelLimit(10000), modelHandler.CreateRefine)
	modelAPI.Get("/download/:encoded", modelHandler.Download)

	sessions := app.Group("/api/sessions", authMiddleware.Authenticate())
	sessions.Post("/", rateLimiter.SessionLimit(10000), sessionHandler.Start)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/cancel", sessionHandler.Cancel)

	return &testApp{app: app, sessions: sessionService}
}

type asynqNop struct{}

func (asynqNop) Debug(...interface{}) {}
func (asynqNop) Info(...interface{})  {}
func (asynqNop) Warn(...interface{})  {}
func (asynqNop) Error(...interface{}) {}
func (asynqNop) Fatal(...interface{}) {}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as userID.
func doAuthRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// eventually polls cond every 25ms until it holds or timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}
