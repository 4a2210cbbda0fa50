package rest

import (
	"encoding/json"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

func TestPruneHandlerAppliesDefaultsAndReturnsResult(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	rec := postJSON(t, app, "/api/v1/admin/maintenance/prune", adminHeaders(nil), map[string]interface{}{"dry_run": true})
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}

	var result db.PruneResult
	json.Unmarshal(rec.Body, &result)
	if !result.DryRun {
		t.Error("expected the dry_run flag to be echoed back")
	}
}

func TestDeviceTokensHandlerOmitsRawAndHashedValues(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	deviceID, deviceToken := enrollDeviceForTest(t, app, cfg, "tokens-device")

	rec := getJSON(t, app, "/api/v1/admin/devices/"+deviceID+"/tokens", adminHeaders(nil))
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}

	var body struct {
		Tokens []map[string]interface{} `json:"tokens"`
	}
	json.Unmarshal(rec.Body, &body)
	if len(body.Tokens) != 1 {
		t.Fatalf("expected 1 token row, got %d", len(body.Tokens))
	}
	if _, ok := body.Tokens[0]["token_hash"]; ok {
		t.Error("expected token_hash to never be exposed over the admin API")
	}
	prefix, _ := body.Tokens[0]["prefix"].(string)
	if prefix == "" || prefix == deviceToken {
		t.Errorf("expected a short prefix, not the raw token, got %q", prefix)
	}
}
