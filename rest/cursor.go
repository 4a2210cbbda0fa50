package rest

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// auditCursor is the decoded form of the opaque cursor spec §4.6/§9 requires
// for audit pagination: callers never see (ts, id) as structured fields.
type auditCursor struct {
	TS time.Time `json:"ts"`
	ID string    `json:"id"`
}

func encodeCursor(ts time.Time, id string) string {
	data, _ := json.Marshal(auditCursor{TS: ts, ID: id})
	return base64.URLEncoding.EncodeToString(data)
}

func decodeCursor(raw string) (*auditCursor, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	var c auditCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
