// Package registry manages device bindings: the association between a
// physical monitoring device, its API key, and the patient it is attached to.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// Binding maps to the devices table. The APIKey is never serialized.
type Binding struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DeviceID   string     `db:"device_id" json:"device_id"`
	APIKey     string     `db:"api_key" json:"-"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	Label      *string    `db:"label" json:"label,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastSyncAt *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
