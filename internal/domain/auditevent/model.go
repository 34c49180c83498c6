package auditevent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionRead   = "read"
	ActionLogin  = "login"
	ActionScan   = "scan"
)

// AuditEvent maps to the audit_event table. Append-only: rows are written
// once and never mutated.
type AuditEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ActorUserID *uuid.UUID      `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string          `db:"action" json:"action"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    *uuid.UUID      `db:"entity_id" json:"entity_id,omitempty"`
	Before      json.RawMessage `db:"before" json:"before,omitempty"`
	After       json.RawMessage `db:"after" json:"after,omitempty"`
	IPAddress   string          `db:"ip_address" json:"ip_address"`
	UserAgent   string          `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
