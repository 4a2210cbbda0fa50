package db

import "testing"

func TestUpsertPolicyTxCreatesThenUpdatesInPlace(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	tx, _ := DB.Begin()
	created, err := UpsertPolicyTx(tx, testTenantID, "baseline", "v1", 1, true, `{"resources":[]}`)
	if err != nil {
		t.Fatalf("UpsertPolicyTx create failed: %v", err)
	}
	tx.Commit()

	tx2, _ := DB.Begin()
	updated, err := UpsertPolicyTx(tx2, testTenantID, "baseline", "v2", 2, false, `{"resources":[{"type":"t","id":"k","name":"n"}]}`)
	if err != nil {
		t.Fatalf("UpsertPolicyTx update failed: %v", err)
	}
	tx2.Commit()

	if updated.ID != created.ID {
		t.Errorf("expected upsert to mutate the same row, got ids %s and %s", created.ID, updated.ID)
	}
	if updated.Description != "v2" || updated.SchemaVersion != 2 || updated.IsActive {
		t.Errorf("expected updated fields to be persisted, got %+v", updated)
	}

	policies, err := ListPolicies(testTenantID)
	if err != nil {
		t.Fatalf("ListPolicies failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected exactly one policy row after upsert-by-name, got %d", len(policies))
	}
}

func TestGetActivePoliciesByIDsExcludesInactive(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	tx, _ := DB.Begin()
	active, _ := UpsertPolicyTx(tx, testTenantID, "active-policy", "", 1, true, `{"resources":[]}`)
	inactive, _ := UpsertPolicyTx(tx, testTenantID, "inactive-policy", "", 1, false, `{"resources":[]}`)
	tx.Commit()

	found, err := GetActivePoliciesByIDs(testTenantID, []string{active.ID, inactive.ID})
	if err != nil {
		t.Fatalf("GetActivePoliciesByIDs failed: %v", err)
	}
	if _, ok := found[active.ID]; !ok {
		t.Error("expected the active policy to be present")
	}
	if _, ok := found[inactive.ID]; ok {
		t.Error("expected the inactive policy to be excluded")
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	setupTestDB(t)
	defer teardownTestDB()

	if _, err := GetPolicy(testTenantID, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
