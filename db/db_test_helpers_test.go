package db

import (
	"testing"
	"time"
)

func mustParseTime(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", raw, err)
	}
	return ts
}

func setupTestDB(t *testing.T) {
	t.Helper()
	if err := Connect(Config{Driver: "sqlite", DatabaseURL: ":memory:"}); err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

func teardownTestDB() {
	Close()
}

const testTenantID = "00000000-0000-0000-0000-000000000001"
