// Package vitals stores and serves time-series biometric readings.
package vitals

import (
	"time"

	"github.com/google/uuid"
)

// Reading maps to the sensor_readings table. Every vital sign is optional;
// a nil pointer means the device did not report that channel.
type Reading struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	DeviceID        string    `db:"device_id" json:"device_id"`
	RecordedAt      time.Time `db:"recorded_at" json:"recorded_at"`
	HeartRate       *float64  `db:"heart_rate" json:"heart_rate,omitempty"`
	SpO2            *float64  `db:"spo2" json:"spo2,omitempty"`
	SystolicBP      *float64  `db:"systolic_bp" json:"systolic_bp,omitempty"`
	DiastolicBP     *float64  `db:"diastolic_bp" json:"diastolic_bp,omitempty"`
	Temperature     *float64  `db:"body_temperature" json:"body_temperature,omitempty"`
	RespiratoryRate *float64  `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
