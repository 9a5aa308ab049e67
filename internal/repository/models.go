package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Site struct {
	ID        uuid.UUID
	Name      string
	Domain    string
	CreatedAt time.Time
}

type Tier struct {
	ID         uuid.UUID
	Slug       string
	Name       string
	Price      int64
	VideoLimit sql.NullInt64
	AdminLimit sql.NullInt64
	CreatedAt  time.Time
}

type SiteTierInfo struct {
	SiteID                uuid.UUID
	TierID                uuid.UUID
	EnforcePayments       bool
	WelcomeEmailSent      sql.NullTime
	VideoLimitWarningSent sql.NullTime
	VideoCountWhenWarned  sql.NullInt64
	FreeTrialEndingSent   sql.NullTime
	FreeTrialStartedAt    sql.NullTime
	UpdatedAt             time.Time
}

type Subscription struct {
	ID         uuid.UUID
	SiteID     uuid.UUID
	ProviderID string
	Price      int64
	SignupAt   time.Time
	ModifiedAt sql.NullTime
	Cancelled  bool
}

type Owner struct {
	ID          uuid.UUID
	SiteID      uuid.UUID
	Email       string
	Name        string
	IsSuperuser bool
	CreatedAt   time.Time
}

type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      json.RawMessage
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ErrorMessage sql.NullString
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	CreatedAt    time.Time
}

type WebhookEvent struct {
	ID          uuid.UUID
	Provider    string
	EventID     string
	EventType   string
	Payload     pqtype.NullRawMessage
	ProcessedAt sql.NullTime
	Error       sql.NullString
	CreatedAt   time.Time
}
