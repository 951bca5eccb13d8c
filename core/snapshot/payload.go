package snapshot

import (
	"time"
)

// Severity grades a reported symptom.
type Severity string

const (
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// Valid reports whether s is one of the three known grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// Symptom is a single reported symptom. ID is unique within a Payload.
type Symptom struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Date     string   `json:"date"` // calendar date, YYYY-MM-DD
}

// VitalSigns is the most recent set of vitals. BloodPressure is "SYS/DIA".
type VitalSigns struct {
	BloodPressure string    `json:"bloodPressure"`
	HeartRate     string    `json:"heartRate"`
	Temperature   string    `json:"temperature"`
	LastChecked   time.Time `json:"lastChecked"`
}

// Medication has no id of its own; identity is its position in the list.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

// Payload is the clinical data unit shared between issuer and redeemer.
// Every collection may be empty; an empty Payload renders as "no data".
type Payload struct {
	Symptoms    []Symptom    `json:"recentSymptoms"`
	VitalSigns  *VitalSigns  `json:"vitalSigns,omitempty"`
	Medications []Medication `json:"medications"`
}

// IsEmpty reports whether the payload carries no clinical data at all.
func (p *Payload) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Symptoms) == 0 && len(p.Medications) == 0 && p.VitalSigns == nil
}

// Clone returns a deep copy of p. Nil collections come back as empty slices so
// the wire form always carries arrays.
func (p *Payload) Clone() Payload {
	out := Payload{
		Symptoms:    []Symptom{},
		Medications: []Medication{},
	}
	if p == nil {
		return out
	}
	out.Symptoms = append(out.Symptoms, p.Symptoms...)
	out.Medications = append(out.Medications, p.Medications...)
	if p.VitalSigns != nil {
		v := *p.VitalSigns
		out.VitalSigns = &v
	}
	return out
}

// SymptomByID looks up a symptom by its payload-unique id.
func (p *Payload) SymptomByID(id int) (Symptom, bool) {
	for _, s := range p.Symptoms {
		if s.ID == id {
			return s, true
		}
	}
	return Symptom{}, false
}
