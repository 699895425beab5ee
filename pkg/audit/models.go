// Package audit records an append-only trail of lifecycle decisions and
// mutating API calls, serves it back over HTTP, and prunes it on a schedule.
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Event types written by the lifecycle controller and the HTTP middleware.
const (
	EventCollectionCreated       = "collection.created"
	EventCollectionStatusChanged = "collection.status.changed"
	EventCollectionDeleted       = "collection.deleted"
	EventAccessDenied            = "access.denied"
	EventAPIRequest              = "api.request"
)

// JSONMap is a map[string]any stored as a JSON text column.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Event is an immutable audit log entry.
type Event struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	CorrelationID string    `gorm:"column:correlation_id;index" json:"correlationId,omitempty"`
	EventType     string    `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null" json:"eventType"`
	Actor         string    `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null" json:"actor"`
	ActorRole     string    `gorm:"column:actor_role" json:"actorRole,omitempty"`
	ResourceType  string    `gorm:"column:resource_type" json:"resourceType,omitempty"`
	ResourceID    string    `gorm:"column:resource_id;index:idx_audit_resource_time,priority:1" json:"resourceId,omitempty"`
	Action        string    `gorm:"column:action" json:"action,omitempty"`
	Outcome       string    `gorm:"column:outcome;not null" json:"outcome"`
	Reason        string    `gorm:"column:reason" json:"reason,omitempty"`
	OldValue      JSONMap   `gorm:"column:old_value;type:text" json:"oldValue,omitempty"`
	NewValue      JSONMap   `gorm:"column:new_value;type:text" json:"newValue,omitempty"`
	Metadata      JSONMap   `gorm:"column:metadata;type:text" json:"metadata,omitempty"`
	RequestID     string    `gorm:"column:request_id;index" json:"requestId,omitempty"`
	StatusCode    int       `gorm:"column:status_code" json:"statusCode,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;index:idx_audit_resource_time,priority:2;autoCreateTime" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }
