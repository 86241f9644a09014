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

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/auth"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/jobstore"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/pipeline"
	"github.com/storyreel/api/internal/queue"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/worker"
	ws "github.com/storyreel/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	artifacts *artifact.MemoryStore
}

type setupOption func(*setupConfig)

type setupConfig struct {
	executors     client.Executors
	generateLimit fiber.Handler
}

func withExecutors(ex client.Executors) setupOption {
	return func(c *setupConfig) { c.executors = ex }
}

func withGenerateLimit(h fiber.Handler) setupOption {
	return func(c *setupConfig) { c.generateLimit = h }
}

// setupApp wires the app the way the serve command does, with memory stores,
// the in-process queue and mock executors.
func setupApp(t *testing.T, opts ...setupOption) *testApp {
	t.Helper()

	sc := setupConfig{executors: client.MockExecutors()}
	for _, o := range opts {
		o(&sc)
	}

	artifacts := artifact.NewMemoryStore()
	jobs := jobstore.NewMemoryStore()
	cat := catalog.Default()

	hub := ws.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	q := queue.NewLocalQueue(4)
	orch := service.NewOrchestrator(jobs, q, cat, service.Options{
		Retry:       pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		MinDuration: 10,
		MaxDuration: 25,
		Notifier:    hub,
	})
	runner := worker.NewRunner(sc.executors, artifacts, cat, worker.Timeouts{
		Script:      5 * time.Second,
		Image:       5 * time.Second,
		Narration:   5 * time.Second,
		Composition: 5 * time.Second,
	})
	q.Start(runner.Handler(orch))
	t.Cleanup(func() {
		q.Close()
		stopHub()
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
	})
	handler.RegisterRoutes(app, handler.Routes{
		Health: handler.NewHealthHandler(client.ProviderStatus{}, handler.Backends{
			Storage:  artifacts.Name(),
			JobStore: "memory",
			Queue:    "local",
		}, true),
		Video:         handler.NewVideoHandler(orch, artifacts, cat, hub, validator.New()),
		Auth:          middleware.NewAuthMiddleware(testJWTSecret).Authenticate(),
		GenerateLimit: sc.generateLimit,
	})

	return &testApp{app: app, artifacts: artifacts}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.IssueToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
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

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
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

// errorCode returns error.code of an error response body.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got %v", body)
	}
	code, _ := detail["code"].(string)
	return code
}
