package db

import "time"

type Tenant struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Device struct {
	ID           string
	TenantID     string
	DeviceKey    string
	Hostname     string
	OS           string
	OSVersion    string
	Arch         string
	AgentVersion string
	Tags         map[string]string
	Status       string
	LastSeenAt   *time.Time
	DeletedAt    *time.Time
	CreatedAt    time.Time
}

type EnrollToken struct {
	ID        string
	TenantID  string
	TokenHash string
	Note      string
	ExpiresAt *time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type DeviceAuthToken struct {
	ID         string
	DeviceID   string
	TenantID   string
	TokenHash  string
	Prefix     string
	IssuedAt   time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

type Policy struct {
	ID            string
	TenantID      string
	Name          string
	Description   string
	SchemaVersion int
	IsActive      bool
	Document      string // opaque JSON, see internal/compiler
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PolicyAssignment struct {
	ID        string
	TenantID  string
	DeviceID  string
	PolicyID  string
	Priority  int
	Mode      string
	CreatedAt time.Time
}

type Run struct {
	ID                  string
	TenantID            string
	DeviceID            string
	StartedAt           time.Time
	EndedAt             time.Time
	Status              string
	AgentVersion        string
	EffectivePolicyHash string
	PolicySnapshot      string
	Summary             string
	CorrelationID       *string
	CreatedAt           time.Time
}

type RunItem struct {
	ID               string
	RunID            string
	Ordinal          int
	ResourceType     string
	ResourceID       string
	Name             string
	StatusDetect     string
	StatusRemediate  string
	StatusValidate   string
	CompliantBefore  *bool
	CompliantAfter   *bool
	Changed          bool
	Evidence         string
	ErrorType        *string
	ErrorMessage     *string
}

type LogEvent struct {
	ID      string
	RunID   string
	Ordinal int
	TS      time.Time
	Level   string
	Message string
	Data    string
}

type AuditLog struct {
	ID            string
	TenantID      string
	TS            time.Time
	Actor         string
	Action        string
	TargetType    string
	TargetID      string
	Before        *string
	After         *string
	CorrelationID *string
}
