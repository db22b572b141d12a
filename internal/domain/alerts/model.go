// Package alerts evaluates threshold rules against readings and manages the
// resulting alert records.
package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types.
const (
	TypeHighHeartRate       = "high_heart_rate"
	TypeLowOxygenSaturation = "low_oxygen_saturation"
)

// Alert maps to the alerts table. ReadingID references the reading that
// triggered the alert and DeviceID records which device produced it.
type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	DeviceID       string     `db:"device_id" json:"device_id"`
	ReadingID      uuid.UUID  `db:"reading_id" json:"reading_id"`
	Type           string     `db:"type" json:"type"`
	Severity       string     `db:"severity" json:"severity"`
	Threshold      float64    `db:"threshold" json:"threshold"`
	Value          float64    `db:"value" json:"value"`
	Message        string     `db:"message" json:"message"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
