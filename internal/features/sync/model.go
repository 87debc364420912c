package sync

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync directions
const (
	DirectionImport = "import"
	DirectionExport = "export"
)

// Sync outcome statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// MaskedToken is what read paths return instead of the stored credential,
// and what callers send to mean "keep the stored credential".
const MaskedToken = "***"

// ConnectorSetting is the per-provider configuration row. At most one per
// provider (upsert keyed on the provider name).
type ConnectorSetting struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Provider     string             `json:"provider" bson:"provider"`
	APIToken     string             `json:"apiToken,omitempty" bson:"api_token,omitempty"`
	BaseID       string             `json:"containerId" bson:"base_id"`
	TableName    string             `json:"tableName" bson:"table_name"`
	FieldMapping map[string]string  `json:"fieldMapping,omitempty" bson:"field_mapping,omitempty"`
	IsActive     bool               `json:"isActive" bson:"is_active"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

// SettingUpdate carries a merge-upsert: only non-nil fields are written.
// FieldMapping accepts either a JSON object or a JSON-encoded string.
type SettingUpdate struct {
	APIToken     *string         `json:"apiToken"`
	BaseID       *string         `json:"containerId"`
	TableName    *string         `json:"tableName"`
	FieldMapping json.RawMessage `json:"fieldMapping"`
	IsActive     *bool           `json:"isActive"`
}

// SyncLog is the immutable record of one sync attempt. Exactly one entry is
// written per attempt, success or not.
type SyncLog struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Provider         string             `json:"provider" bson:"provider"`
	Direction        string             `json:"direction" bson:"direction"`
	Status           string             `json:"status" bson:"status"`
	RecordsProcessed int                `json:"records_processed" bson:"records_processed"`
	RecordsCreated   int                `json:"records_created" bson:"records_created"`
	RecordsUpdated   int                `json:"records_updated" bson:"records_updated"`
	ErrorMessage     string             `json:"error_message,omitempty" bson:"error_message,omitempty"`
	StartedAt        time.Time          `json:"started_at" bson:"started_at"`
	CompletedAt      time.Time          `json:"completed_at" bson:"completed_at"`
}

// SyncResult is the caller-facing outcome of one import or export call.
type SyncResult struct {
	Status           string   `json:"status"`
	RecordsProcessed int      `json:"recordsProcessed"`
	RecordsCreated   int      `json:"recordsCreated"`
	RecordsUpdated   int      `json:"recordsUpdated"`
	Errors           []string `json:"errors"`
	UnknownStatuses  []string `json:"unknownStatuses,omitempty"`
}
