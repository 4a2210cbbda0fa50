// Package tokens mints and verifies the opaque bearer credentials used for
// both enroll tokens and device auth tokens (spec §4.1).
package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"time"
)

const (
	rawTokenBytes = 32
	// PrefixLength is how many characters of the raw (base32) token are
	// retained for display purposes; the rest is never persisted.
	PrefixLength = 8
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Minted is the one-time result of minting a token: the raw value returned
// to the caller (never persisted) plus everything that is persisted.
type Minted struct {
	Raw       string
	Hash      string
	Prefix    string
}

// Mint generates a new cryptographically random token and computes its
// pepper-keyed hash. The raw value must be returned to the caller exactly
// once; callers must never log or persist it (spec §3 invariant 1).
func Mint(pepper string) (Minted, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Minted{}, err
	}

	raw := encoding.EncodeToString(buf)
	hash := Hash(pepper, raw)

	prefix := raw
	if len(prefix) > PrefixLength {
		prefix = prefix[:PrefixLength]
	}

	return Minted{Raw: raw, Hash: hash, Prefix: prefix}, nil
}

// Hash computes HMAC-SHA256(pepper, token), base32-encoded without padding. This is the only
// form of a token ever written to storage.
func Hash(pepper, rawToken string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(rawToken))
	sum := mac.Sum(nil)
	return encoding.EncodeToString(sum)
}

// Equal compares two hashes in constant time. Hashes are already
// fixed-format HMAC output, so this protects the (already unlikely)
// timing side channel of a naive == comparison against a stored hash.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// VerifyResult is the outcome enum of spec §4.1.
type VerifyResult int

const (
	Valid VerifyResult = iota
	Expired
	Revoked
	NotFound
	Used
)

func (v VerifyResult) String() string {
	switch v {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Revoked:
		return "revoked"
	case NotFound:
		return "not_found"
	case Used:
		return "used"
	default:
		return "unknown"
	}
}

var ErrNotFound = errors.New("tokens: not found")

// EnrollTokenState is the subset of EnrollToken fields needed to classify a
// verification attempt without the tokens package depending on db.
type EnrollTokenState struct {
	ExpiresAt *time.Time
	UsedAt    *time.Time
}

// VerifyEnrollToken classifies an enroll token attempt. Revocation has no
// state of its own: an admin revoke forces ExpiresAt into the past, so an
// expired token and a revoked one are indistinguishable here by design.
func VerifyEnrollToken(found bool, state EnrollTokenState, now time.Time) VerifyResult {
	if !found {
		return NotFound
	}
	if state.UsedAt != nil {
		return Used
	}
	if state.ExpiresAt != nil && !state.ExpiresAt.After(now) {
		return Expired
	}
	return Valid
}

type DeviceTokenState struct {
	RevokedAt *time.Time
}

func VerifyDeviceToken(found bool, state DeviceTokenState) VerifyResult {
	if !found {
		return NotFound
	}
	if state.RevokedAt != nil {
		return Revoked
	}
	return Valid
}
