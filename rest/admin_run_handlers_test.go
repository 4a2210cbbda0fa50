package rest

import (
	"encoding/json"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

func TestListRunsHandlerFiltersByDeviceID(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	deviceA, tokenA := enrollDeviceForTest(t, app, cfg, "run-list-device-a")
	_, tokenB := enrollDeviceForTest(t, app, cfg, "run-list-device-b")

	postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + tokenA}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z", "ended_at": "2026-01-01T00:01:00Z", "status": "succeeded",
	})
	postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + tokenB}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z", "ended_at": "2026-01-01T00:01:00Z", "status": "succeeded",
	})

	rec := getJSON(t, app, "/api/v1/admin/runs?device_id="+deviceA, adminHeaders(nil))
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}
	var body struct {
		Runs  []db.Run `json:"runs"`
		Total int      `json:"total"`
	}
	json.Unmarshal(rec.Body, &body)
	if body.Total != 1 || len(body.Runs) != 1 || body.Runs[0].DeviceID != deviceA {
		t.Fatalf("expected exactly one run scoped to device A, got %+v", body)
	}
}

func TestGetRunHandlerReturnsItemsAndLogs(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	_, deviceToken := enrollDeviceForTest(t, app, cfg, "run-detail-device")
	ingest := postJSON(t, app, "/api/v1/device/reports", map[string]string{"Authorization": "Bearer " + deviceToken}, map[string]interface{}{
		"started_at": "2026-01-01T00:00:00Z", "ended_at": "2026-01-01T00:01:00Z", "status": "succeeded",
		"items": []map[string]interface{}{
			{"resource_type": "file", "resource_id": "/etc/motd", "status_detect": "present"},
		},
		"logs": []map[string]interface{}{
			{"level": "info", "message": "hello", "ts": "2026-01-01T00:00:30Z"},
		},
	})
	var runResp map[string]string
	json.Unmarshal(ingest.Body, &runResp)

	rec := getJSON(t, app, "/api/v1/admin/runs/"+runResp["run_id"], adminHeaders(nil))
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}
	var body struct {
		Run   db.Run        `json:"run"`
		Items []db.RunItem  `json:"items"`
		Logs  []db.LogEvent `json:"logs"`
	}
	json.Unmarshal(rec.Body, &body)
	if len(body.Items) != 1 || len(body.Logs) != 1 {
		t.Fatalf("expected 1 item and 1 log, got items=%d logs=%d", len(body.Items), len(body.Logs))
	}
}

func TestGetRunHandlerNotFound(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	rec := getJSON(t, app, "/api/v1/admin/runs/nonexistent", adminHeaders(nil))
	if rec.Code != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, string(rec.Body))
	}
}
