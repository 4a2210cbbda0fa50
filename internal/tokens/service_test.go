package tokens

import (
	"strings"
	"testing"
	"time"
)

func TestMintProducesVerifiableHash(t *testing.T) {
	minted, err := Mint("pepper-1")
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if minted.Raw == "" {
		t.Fatal("expected a non-empty raw token")
	}
	if minted.Hash != Hash("pepper-1", minted.Raw) {
		t.Error("hash stored on Minted does not match Hash(pepper, raw)")
	}
	if len(minted.Prefix) != PrefixLength {
		t.Errorf("expected prefix length %d, got %d", PrefixLength, len(minted.Prefix))
	}
	if !strings.HasPrefix(minted.Raw, minted.Prefix) {
		t.Error("prefix is not a prefix of the raw token")
	}
}

func TestHashIsDeterministicAndPepperSensitive(t *testing.T) {
	a := Hash("pepper-1", "abc")
	b := Hash("pepper-1", "abc")
	if a != b {
		t.Error("same pepper and token must hash identically")
	}
	if Hash("pepper-2", "abc") == a {
		t.Error("different peppers must not collide for the same token")
	}
}

func TestEqualConstantTimeComparison(t *testing.T) {
	if !Equal("same", "same") {
		t.Error("expected equal hashes to compare equal")
	}
	if Equal("same", "different") {
		t.Error("expected different hashes to compare unequal")
	}
}

func TestVerifyEnrollToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		found bool
		state EnrollTokenState
		want  VerifyResult
	}{
		{"not found", false, EnrollTokenState{}, NotFound},
		{"valid", true, EnrollTokenState{ExpiresAt: &future}, Valid},
		{"no expiry set", true, EnrollTokenState{}, Valid},
		{"used", true, EnrollTokenState{UsedAt: &past}, Used},
		{"expired (also the revoke path, which forces expires_at)", true, EnrollTokenState{ExpiresAt: &past}, Expired},
		{"used takes priority over expired", true, EnrollTokenState{UsedAt: &past, ExpiresAt: &past}, Used},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyEnrollToken(tt.found, tt.state, now)
			if got != tt.want {
				t.Errorf("VerifyEnrollToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyDeviceToken(t *testing.T) {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := VerifyDeviceToken(false, DeviceTokenState{}); got != NotFound {
		t.Errorf("expected NotFound, got %v", got)
	}
	if got := VerifyDeviceToken(true, DeviceTokenState{}); got != Valid {
		t.Errorf("expected Valid, got %v", got)
	}
	if got := VerifyDeviceToken(true, DeviceTokenState{RevokedAt: &past}); got != Revoked {
		t.Errorf("expected Revoked, got %v", got)
	}
}

func TestVerifyResultString(t *testing.T) {
	cases := map[VerifyResult]string{
		Valid:   "valid",
		Expired: "expired",
		Revoked: "revoked",
		NotFound: "not_found",
		Used:    "used",
	}
	for result, want := range cases {
		if got := result.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", result, got, want)
		}
	}
}
