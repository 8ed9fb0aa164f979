package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/framebeat/api/internal/client"
	"github.com/framebeat/api/internal/config"
	"github.com/framebeat/api/internal/handler"
	"github.com/framebeat/api/internal/ledger"
	"github.com/framebeat/api/internal/media"
	"github.com/framebeat/api/internal/media/mediatest"
	"github.com/framebeat/api/internal/middleware"
	"github.com/framebeat/api/internal/service"
	"github.com/framebeat/api/internal/storage"
)

// scriptedVision answers every recognition request with a fixed text.
type scriptedVision struct {
	answer string
}

func (v *scriptedVision) DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return v.answer, nil
}
func (v *scriptedVision) IsConfigured() bool { return v.answer != "" }
func (v *scriptedVision) Close() error       { return nil }

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   *storage.Store
	runner  *mediatest.Runner
	counter *ledger.Counter
	ratings *ledger.Ratings
}

type appOptions struct {
	visionAnswer   string
	selectorScript string
}

// setupApp creates a Fiber app wired like main.go, with ffmpeg faked, the
// vision model scripted and the selector run through sh. No Redis is used so
// async processing and rate limiting stay disabled.
func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	store, err := storage.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if opts.selectorScript == "" {
		opts.selectorScript = `echo golden.mp3`
	}

	validate := validator.New()
	runner := mediatest.NewRunner("30")
	counter := ledger.NewCounter(store.LedgerPath(ledger.CounterFile))
	ratings := ledger.NewRatings(store.LedgerPath(ledger.RatingsFile))
	selector := client.NewSelectorClient(&config.SelectorConfig{
		Command: "sh",
		Args:    []string{"-c", opts.selectorScript, "selector"},
		WorkDir: store.AssetsDir,
	})

	pipeline := service.NewPipelineService(store, service.PipelineDeps{
		Prober:    media.NewProber("ffprobe", runner),
		Sampler:   media.NewFrameSampler("ffmpeg", runner),
		Composer:  media.SheetComposer{},
		Recognize: service.NewRecognitionService(&scriptedVision{answer: opts.visionAnswer}),
		Selector:  selector,
		Muxer:     media.NewMuxer("ffmpeg", runner),
		Counter:   counter,
	})

	processHandler := handler.NewProcessHandler(pipeline, store, nil, nil)
	usageHandler := handler.NewUsageHandler(counter, ratings, validate)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"recognition": opts.visionAnswer != "",
				"r2":          false,
				"redis":       false,
			},
		})
	})
	app.Static("/outputs", store.OutputsDir)
	app.Static("/frames", store.FramesDir)

	api := app.Group("/api")
	process := api.Group("/process", rateLimiter.ProcessLimit(10000))
	process.Post("/", processHandler.Process)
	process.Post("/async", processHandler.ProcessAsync)
	api.Get("/jobs/:jobId", processHandler.JobStatus)
	api.Post("/rating", usageHandler.Rate)
	api.Get("/stats", usageHandler.Stats)

	return &testApp{app: app, store: store, runner: runner, counter: counter, ratings: ratings}
}

// addAsset places a track in the asset library.
func (ta *testApp) addAsset(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(ta.store.AssetPath(name), []byte("ID3"), 0o644); err != nil {
		t.Fatalf("failed to write asset: %v", err)
	}
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

// doUpload posts a multipart form with the given file under field.
func doUpload(app *fiber.App, path, field, filename string, content []byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}
	} else if err := mw.WriteField("note", "no file"); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return app.Test(req, -1)
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

// errorCode extracts error.code from the error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

func errorMessage(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	msg, _ := e["message"].(string)
	return msg
}
