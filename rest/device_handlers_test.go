package rest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
)

func enrollDeviceForTest(t *testing.T, app *fiber.App, cfg config.Config, deviceKey string) (deviceID, deviceToken string) {
	t.Helper()
	return enrollDeviceForTenantForTest(t, app, cfg, config.DefaultTenantID, deviceKey)
}

func enrollDeviceForTenantForTest(t *testing.T, app *fiber.App, cfg config.Config, tenantID, deviceKey string) (deviceID, deviceToken string) {
	t.Helper()
	rawToken := mintEnrollTokenForTest(t, cfg, tenantID)
	rec := postJSON(t, app, "/api/v1/enroll", nil, map[string]interface{}{
		"enroll_token": rawToken, "device_key": deviceKey,
	})
	if rec.Code != fiber.StatusCreated {
		t.Fatalf("enrollment setup failed: %d: %s", rec.Code, string(rec.Body))
	}
	var resp enrollResponse
	if err := json.Unmarshal(rec.Body, &resp); err != nil {
		t.Fatalf("failed to unmarshal enroll response: %v", err)
	}
	return resp.DeviceID, resp.DeviceToken
}

func TestDevicePolicyHandlerReturnsCompiledDocument(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	_, deviceToken := enrollDeviceForTest(t, app, cfg, "policy-device")

	rec := getJSON(t, app, "/api/v1/device/policy", map[string]string{"Authorization": "Bearer " + deviceToken})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body, &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if _, ok := body["effective_policy_hash"]; !ok {
		t.Error("expected an effective_policy_hash field")
	}
}

func TestDevicePolicyHandlerRejectsMissingBearer(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	rec := getJSON(t, app, "/api/v1/device/policy", nil)
	if rec.Code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d: %s", rec.Code, string(rec.Body))
	}
}

func TestDevicePolicyHandlerRejectsRevokedToken(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	deviceID, deviceToken := enrollDeviceForTest(t, app, cfg, "revoked-device")

	tx, _ := db.GetDB().Begin()
	if err := db.RevokeActiveDeviceTokenTx(tx, deviceID, time.Now().UTC()); err != nil {
		t.Fatalf("failed to revoke token: %v", err)
	}
	tx.Commit()

	rec := getJSON(t, app, "/api/v1/device/policy", map[string]string{"Authorization": "Bearer " + deviceToken})
	if rec.Code != fiber.StatusForbidden {
		t.Fatalf("expected 403 for a revoked token, got %d: %s", rec.Code, string(rec.Body))
	}
}

func TestReportIngestHandlerPersistsRunAndTouchesDevice(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	deviceID, deviceToken := enrollDeviceForTest(t, app, cfg, "report-device")

	rec := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z",
		"ended_at":   "2026-01-01T00:01:00Z",
		"status":     "succeeded",
		"items": []map[string]interface{}{
			{"resource_type": "file", "resource_id": "/etc/motd", "status_detect": "present"},
		},
	})
	if rec.Code != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, string(rec.Body))
	}

	device, err := db.GetDevice(config.DefaultTenantID, deviceID)
	if err != nil {
		t.Fatalf("failed to reload device: %v", err)
	}
	if device.LastSeenAt == nil {
		t.Error("expected last_seen_at to be stamped by report ingest")
	}
}

func TestReportIngestHandlerIsIdempotentByCorrelationID(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	_, deviceToken := enrollDeviceForTest(t, app, cfg, "idempotent-report-device")

	payload := map[string]interface{}{
		"started_at":     "2026-01-01T00:00:00Z",
		"ended_at":       "2026-01-01T00:01:00Z",
		"status":         "succeeded",
		"correlation_id": "report-corr-1",
	}

	first := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, payload)
	if first.Code != fiber.StatusCreated {
		t.Fatalf("expected first ingest to succeed, got %d: %s", first.Code, string(first.Body))
	}
	var firstResp map[string]string
	json.Unmarshal(first.Body, &firstResp)

	second := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, payload)
	if second.Code != fiber.StatusCreated {
		t.Fatalf("expected replay to also report 201, got %d: %s", second.Code, string(second.Body))
	}
	var secondResp map[string]string
	json.Unmarshal(second.Body, &secondResp)

	if firstResp["run_id"] != secondResp["run_id"] {
		t.Errorf("expected the same run_id on replay, got %s and %s", firstResp["run_id"], secondResp["run_id"])
	}

	runs, total, err := db.ListRuns(db.RunListFilter{TenantID: config.DefaultTenantID, Limit: 10})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if total != 1 || len(runs) != 1 {
		t.Fatalf("expected exactly one run to be persisted despite the replay, got total=%d len=%d", total, len(runs))
	}
}

func TestReportIngestHandlerRejectsMalformedItem(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	_, deviceToken := enrollDeviceForTest(t, app, cfg, "malformed-item-device")

	rec := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z",
		"ended_at":   "2026-01-01T00:01:00Z",
		"status":     "succeeded",
		"items": []map[string]interface{}{
			{"resource_type": "file", "resource_id": "/etc/motd", "status_detect": "present"},
			{"resource_type": "", "resource_id": "", "status_detect": ""},
		},
	})
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a malformed item, got %d: %s", rec.Code, string(rec.Body))
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body, &body)
	errObj, _ := body["error"].(map[string]interface{})
	details, _ := errObj["details"].(map[string]interface{})
	if ordinal, ok := details["ordinal"]; !ok || ordinal != float64(1) {
		t.Errorf("expected error details to report ordinal 1, got %+v", details)
	}
}

func TestReportIngestHandlerRejectsInvalidStatus(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	_, deviceToken := enrollDeviceForTest(t, app, cfg, "bad-status-device")

	rec := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z",
		"ended_at":   "2026-01-01T00:01:00Z",
		"status":     "bogus",
	})
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an invalid status, got %d: %s", rec.Code, string(rec.Body))
	}
}
