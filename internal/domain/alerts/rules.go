package alerts

import (
	"strconv"

	"github.com/vitalwatch/vitalwatch/internal/domain/vitals"
)

// Candidate is a rule violation detected in a reading, before it is stored
// as an Alert.
type Candidate struct {
	Type      string
	Severity  string
	Threshold float64
	Value     float64
	Message   string
}

type rule struct {
	value    func(r *vitals.Reading) *float64
	violates func(v float64) bool
	build    func(v float64) Candidate
}

// The rule table is evaluated in a fixed order so a reading that trips
// several rules always yields its alerts in the same sequence.
var rules = []rule{
	{
		value:    func(r *vitals.Reading) *float64 { return r.HeartRate },
		violates: func(v float64) bool { return v > 120 },
		build: func(v float64) Candidate {
			severity := SeverityWarning
			if v > 140 {
				severity = SeverityCritical
			}
			return Candidate{
				Type:      TypeHighHeartRate,
				Severity:  severity,
				Threshold: 120,
				Value:     v,
				Message:   "High heart rate detected: " + formatValue(v) + " bpm",
			}
		},
	},
	{
		value:    func(r *vitals.Reading) *float64 { return r.SpO2 },
		violates: func(v float64) bool { return v < 92 },
		build: func(v float64) Candidate {
			severity := SeverityWarning
			if v < 88 {
				severity = SeverityCritical
			}
			return Candidate{
				Type:      TypeLowOxygenSaturation,
				Severity:  severity,
				Threshold: 92,
				Value:     v,
				Message:   "Low oxygen saturation detected: " + formatValue(v) + "%",
			}
		},
	},
}

// Evaluate runs every threshold rule against a reading and returns the
// violations in rule-table order. A reading missing a vital simply skips
// that rule.
func Evaluate(r *vitals.Reading) []Candidate {
	var out []Candidate
	for _, rl := range rules {
		v := rl.value(r)
		if v == nil {
			continue
		}
		if rl.violates(*v) {
			out = append(out, rl.build(*v))
		}
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
