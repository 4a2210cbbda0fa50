package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/tokens"
)

// testResponse is a flattened, already-drained stand-in for *http.Response
// so table-driven tests can inspect status and body without juggling
// Close() calls.
type testResponse struct {
	Code int
	Body []byte
}

func doRequest(t *testing.T, app *fiber.App, method, path string, headers map[string]string, payload interface{}) testResponse {
	t.Helper()
	var body []byte
	var err error
	switch v := payload.(type) {
	case nil:
		body = nil
	case string:
		body = []byte(v)
	case []byte:
		body = v
	default:
		body, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return testResponse{Code: resp.StatusCode, Body: respBody}
}

func postJSON(t *testing.T, app *fiber.App, path string, headers map[string]string, payload interface{}) testResponse {
	t.Helper()
	return doRequest(t, app, fiber.MethodPost, path, headers, payload)
}

func getJSON(t *testing.T, app *fiber.App, path string, headers map[string]string) testResponse {
	t.Helper()
	return doRequest(t, app, fiber.MethodGet, path, headers, nil)
}

func deleteJSON(t *testing.T, app *fiber.App, path string, headers map[string]string) testResponse {
	t.Helper()
	return doRequest(t, app, fiber.MethodDelete, path, headers, nil)
}

const testAdminKey = "test-admin-key"
const testPepper = "test-pepper"

func testConfig() config.Config {
	return config.Config{
		AdminKey:                         testAdminKey,
		TokenPepper:                      testPepper,
		MaxRequestBodyBytesDefault:       1 << 20,
		MaxRequestBodyBytesDeviceReports: 10 << 20,
		RateLimitEnabled:                 false,
		DefaultRequestTimeout:            5 * time.Second,
		ReportIngestTimeout:              5 * time.Second,
		MaxItemsPerRun:                   2000,
		MaxLogsPerRun:                    5000,
		DeviceStaleAfter:                 15 * time.Minute,
	}
}

func setupRestTestDB(t *testing.T) {
	t.Helper()
	if err := db.Connect(db.Config{Driver: "sqlite", DatabaseURL: ":memory:"}); err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

func teardownRestTestDB() {
	db.Close()
}

func setupRestTestApp(cfg config.Config) *fiber.App {
	app := fiber.New()
	Init(app, cfg)
	return app
}

func mintEnrollTokenForTest(t *testing.T, cfg config.Config, tenantID string) string {
	t.Helper()
	tx, err := db.GetDB().Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	minted, err := tokens.Mint(cfg.TokenPepper)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	if _, err := db.CreateEnrollTokenTx(tx, tenantID, minted.Hash, "test token", nil); err != nil {
		t.Fatalf("failed to create enroll token: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	return minted.Raw
}
