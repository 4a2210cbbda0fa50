package db

import "testing"

func writeTestAuditLog(t *testing.T, action, targetType, targetID string) *AuditLog {
	t.Helper()
	tx, err := DB.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	a, err := WriteAuditLogTx(tx, NewAuditLog{
		TenantID: testTenantID, Actor: "admin", Action: action,
		TargetType: targetType, TargetID: targetID,
	})
	if err != nil {
		t.Fatalf("WriteAuditLogTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	return a
}

func TestWriteAuditLogTxPersistsRow(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	a := writeTestAuditLog(t, "tenant.create", "tenant", "tenant-1")

	logs, hasMore, err := ListAuditLogs(AuditFilter{TenantID: testTenantID, Limit: 10})
	if err != nil {
		t.Fatalf("ListAuditLogs failed: %v", err)
	}
	if hasMore {
		t.Error("expected no more pages for a single row")
	}
	if len(logs) != 1 || logs[0].ID != a.ID {
		t.Fatalf("expected exactly the written row back, got %+v", logs)
	}
}

func TestListAuditLogsFiltersByActionAndTarget(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	writeTestAuditLog(t, "policy.upsert", "policy", "policy-1")
	writeTestAuditLog(t, "tenant.create", "tenant", "tenant-1")
	writeTestAuditLog(t, "policy.upsert", "policy", "policy-2")

	logs, _, err := ListAuditLogs(AuditFilter{TenantID: testTenantID, Action: "policy.upsert", Limit: 10})
	if err != nil {
		t.Fatalf("ListAuditLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 policy.upsert rows, got %d", len(logs))
	}
	for _, l := range logs {
		if l.Action != "policy.upsert" {
			t.Errorf("expected only policy.upsert rows, got %s", l.Action)
		}
	}

	byTarget, _, err := ListAuditLogs(AuditFilter{TenantID: testTenantID, TargetType: "tenant", TargetID: "tenant-1", Limit: 10})
	if err != nil {
		t.Fatalf("ListAuditLogs by target failed: %v", err)
	}
	if len(byTarget) != 1 || byTarget[0].TargetID != "tenant-1" {
		t.Fatalf("expected exactly one tenant-1 row, got %+v", byTarget)
	}
}

func TestListAuditLogsCursorPagination(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	first := writeTestAuditLog(t, "a1", "x", "1")
	second := writeTestAuditLog(t, "a2", "x", "2")
	third := writeTestAuditLog(t, "a3", "x", "3")

	page1, hasMore, err := ListAuditLogs(AuditFilter{TenantID: testTenantID, Limit: 2})
	if err != nil {
		t.Fatalf("ListAuditLogs page 1 failed: %v", err)
	}
	if !hasMore {
		t.Fatal("expected hasMore to be true with 3 rows and a limit of 2")
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 rows in page 1, got %d", len(page1))
	}
	if page1[0].ID != third.ID || page1[1].ID != second.ID {
		t.Fatalf("expected newest-first ordering, got %+v", page1)
	}

	cursorTS := page1[1].TS
	page2, hasMore2, err := ListAuditLogs(AuditFilter{
		TenantID: testTenantID, Limit: 2,
		CursorTS: &cursorTS, CursorID: page1[1].ID,
	})
	if err != nil {
		t.Fatalf("ListAuditLogs page 2 failed: %v", err)
	}
	if hasMore2 {
		t.Error("expected no further pages after exhausting all 3 rows")
	}
	if len(page2) != 1 || page2[0].ID != first.ID {
		t.Fatalf("expected the oldest row alone on page 2, got %+v", page2)
	}
}
