package rest

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/db"
)

func TestListAuditHandlerReturnsRowsWrittenByOtherMutations(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	// tenant.create is audited under the new tenant's own id, so the audit
	// list is read with that tenant as the acting tenant.
	tenantID := createTestTenant(t, app, "audit-source")

	rec := getJSON(t, app, "/api/v1/admin/audit", adminHeaders(map[string]string{"X-Tenant-ID": tenantID}))
	if rec.Code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, string(rec.Body))
	}
	var body struct {
		AuditLogs []db.AuditLog `json:"audit_logs"`
		HasMore   bool          `json:"has_more"`
	}
	json.Unmarshal(rec.Body, &body)
	if len(body.AuditLogs) != 1 || body.AuditLogs[0].Action != "tenant.create" {
		t.Fatalf("expected the tenant.create audit row to come back, got %+v", body.AuditLogs)
	}
}

func TestListAuditHandlerFiltersByAction(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	postJSON(t, app, "/api/v1/admin/tenants", adminHeaders(nil), map[string]interface{}{"name": "audit-filter-a"})
	postJSON(t, app, "/api/v1/admin/policies", adminHeaders(nil), map[string]interface{}{"name": "audit-filter-policy"})

	rec := getJSON(t, app, "/api/v1/admin/audit?action=policy.upsert", adminHeaders(nil))
	var body struct {
		AuditLogs []db.AuditLog `json:"audit_logs"`
	}
	json.Unmarshal(rec.Body, &body)
	if len(body.AuditLogs) != 1 || body.AuditLogs[0].Action != "policy.upsert" {
		t.Fatalf("expected only the policy.upsert row, got %+v", body.AuditLogs)
	}
}

func TestListAuditHandlerPaginatesWithCursor(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	for i := 0; i < 3; i++ {
		postJSON(t, app, "/api/v1/admin/policies", adminHeaders(nil), map[string]interface{}{"name": fmt.Sprintf("cursor-policy-%d", i)})
	}

	page1 := getJSON(t, app, "/api/v1/admin/audit?limit=2", adminHeaders(nil))
	var body1 struct {
		AuditLogs  []db.AuditLog `json:"audit_logs"`
		HasMore    bool          `json:"has_more"`
		NextCursor string        `json:"next_cursor"`
	}
	json.Unmarshal(page1.Body, &body1)
	if !body1.HasMore || body1.NextCursor == "" {
		t.Fatalf("expected a second page to exist, got %+v", body1)
	}
	if len(body1.AuditLogs) != 2 {
		t.Fatalf("expected 2 rows in the first page, got %d", len(body1.AuditLogs))
	}

	page2 := getJSON(t, app, "/api/v1/admin/audit?limit=2&cursor="+body1.NextCursor, adminHeaders(nil))
	var body2 struct {
		AuditLogs []db.AuditLog `json:"audit_logs"`
		HasMore   bool          `json:"has_more"`
	}
	json.Unmarshal(page2.Body, &body2)
	if body2.HasMore {
		t.Error("expected the cursor to exhaust all rows on the second page")
	}
	if len(body2.AuditLogs) != 1 {
		t.Fatalf("expected exactly 1 remaining row, got %d", len(body2.AuditLogs))
	}
}

func TestListAuditHandlerRejectsInvalidCursor(t *testing.T) {
	setupRestTestDB(t)
	defer teardownRestTestDB()
	cfg := testConfig()
	app := setupRestTestApp(cfg)

	rec := getJSON(t, app, "/api/v1/admin/audit?cursor=not-valid-base64!!", adminHeaders(nil))
	if rec.Code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an invalid cursor, got %d: %s", rec.Code, string(rec.Body))
	}
}
