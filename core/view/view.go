// Package view projects a verified payload and the state of a redemption
// into what a reader's screen shows.
package view

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"healthsnap/core/redemption"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
	"healthsnap/core/verification"
)

const (
	NotRecorded  = "Not recorded"
	IdlePrompt   = "Scan a patient's QR code using your device's camera to view their health snapshot."
	ProgressNote = "Verifying data integrity using blockchain..."
)

// Tone is the colour family used for a severity badge.
type Tone string

const (
	ToneMild     Tone = "yellow"
	ToneModerate Tone = "orange"
	ToneSevere   Tone = "red"
)

type SymptomRow struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Severity string `json:"severity"`
	Tone     Tone   `json:"tone"`
}

type VitalsSection struct {
	Present       bool   `json:"present"`
	BloodPressure string `json:"bloodPressure"`
	Systolic      int    `json:"systolic,omitempty"`
	Diastolic     int    `json:"diastolic,omitempty"`
	HeartRate     string `json:"heartRate"`
	Temperature   string `json:"temperature"`
	LastChecked   string `json:"lastChecked"`
}

// MedicationRow is keyed by position; medications carry no id.
type MedicationRow struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type ViewModel struct {
	Empty       bool            `json:"empty"`
	Symptoms    []SymptomRow    `json:"symptoms"`
	Vitals      VitalsSection   `json:"vitals"`
	Medications []MedicationRow `json:"medications"`
}

// Materialize never fails. Missing sections come back as placeholders.
func Materialize(p *snapshot.Payload) ViewModel {
	vm := ViewModel{
		Empty:       p.IsEmpty(),
		Symptoms:    []SymptomRow{},
		Medications: []MedicationRow{},
		Vitals:      vitals(nil),
	}
	if p == nil {
		return vm
	}
	for _, s := range p.Symptoms {
		vm.Symptoms = append(vm.Symptoms, SymptomRow{
			ID:       s.ID,
			Name:     orPlaceholder(s.Name),
			Date:     orPlaceholder(s.Date),
			Severity: string(s.Severity),
			Tone:     toneFor(s.Severity),
		})
	}
	vm.Vitals = vitals(p.VitalSigns)
	for i, m := range p.Medications {
		vm.Medications = append(vm.Medications, MedicationRow{
			Index:     i,
			Name:      orPlaceholder(m.Name),
			Dosage:    orPlaceholder(m.Dosage),
			Frequency: orPlaceholder(m.Frequency),
		})
	}
	return vm
}

func toneFor(s snapshot.Severity) Tone {
	switch s {
	case snapshot.SeverityMild:
		return ToneMild
	case snapshot.SeverityModerate:
		return ToneModerate
	default:
		return ToneSevere
	}
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotRecorded
	}
	return s
}

func vitals(v *snapshot.VitalSigns) VitalsSection {
	if v == nil {
		return VitalsSection{
			BloodPressure: NotRecorded,
			HeartRate:     NotRecorded,
			Temperature:   NotRecorded,
			LastChecked:   NotRecorded,
		}
	}
	out := VitalsSection{
		Present:       true,
		BloodPressure: orPlaceholder(v.BloodPressure),
		HeartRate:     withUnit(v.HeartRate, " bpm"),
		Temperature:   withUnit(v.Temperature, "°F"),
		LastChecked:   NotRecorded,
	}
	if sys, dia, ok := splitBloodPressure(v.BloodPressure); ok {
		out.Systolic, out.Diastolic = sys, dia
	}
	if !v.LastChecked.IsZero() {
		out.LastChecked = v.LastChecked.UTC().Format(time.RFC3339)
	}
	return out
}

func withUnit(v, unit string) string {
	if strings.TrimSpace(v) == "" {
		return NotRecorded
	}
	return v + unit
}

// splitBloodPressure parses "SYS/DIA".
func splitBloodPressure(bp string) (int, int, bool) {
	sys, dia, found := strings.Cut(strings.TrimSpace(bp), "/")
	if !found {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(strings.TrimSpace(sys))
	d, err2 := strconv.Atoi(strings.TrimSpace(dia))
	if err1 != nil || err2 != nil || s <= 0 || d <= 0 {
		return 0, 0, false
	}
	return s, d, true
}

type ScreenKind string

const (
	ScreenIdle     ScreenKind = "idle"
	ScreenProgress ScreenKind = "progress"
	ScreenError    ScreenKind = "error"
	ScreenSnapshot ScreenKind = "snapshot"
)

type ErrorView struct {
	Kind    string `json:"kind"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

type SnapshotView struct {
	SubjectID string    `json:"subjectId"`
	IssuedAt  string    `json:"issuedAt"`
	ExpiresAt string    `json:"expiresAt"`
	View      ViewModel `json:"view"`
}

// Screen is exactly one of: idle prompt, step progress, error banner, or the
// rendered snapshot.
type Screen struct {
	Kind     ScreenKind          `json:"kind"`
	Session  string              `json:"session,omitempty"`
	Phase    string              `json:"phase,omitempty"`
	Note     string              `json:"note,omitempty"`
	Steps    []verification.Step `json:"steps,omitempty"`
	Error    *ErrorView          `json:"error,omitempty"`
	Snapshot *SnapshotView       `json:"snapshot,omitempty"`
}

// ScreenFor picks the screen for the current state of a redemption. The
// snapshot is shown only once the session reached Ready.
func ScreenFor(s *verification.Session, res *redemption.Result, err error) Screen {
	if s == nil && res != nil {
		s = res.Session
	}
	var sc Screen
	if s != nil {
		sc.Session = s.ID().String()
		sc.Phase = string(s.Phase())
	}

	switch {
	case err != nil:
		sc.Kind = ScreenError
		sc.Error = errorView(err)
		// steps mark where verification stopped; the screen is still an error screen
		if s != nil {
			sc.Steps = s.Steps()
		}
	case s == nil:
		sc.Kind = ScreenIdle
		sc.Note = IdlePrompt
	case res != nil && res.Token != nil && s.Phase() == verification.PhaseReady:
		sc.Kind = ScreenSnapshot
		sc.Snapshot = &SnapshotView{
			SubjectID: res.Token.SubjectID(),
			IssuedAt:  res.Token.IssuedAt().Format(token.TimestampLayout),
			ExpiresAt: res.Token.ExpiresAt().Format(token.TimestampLayout),
			View:      Materialize(&res.Payload),
		}
	default:
		sc.Kind = ScreenProgress
		sc.Note = ProgressNote
		sc.Steps = s.Steps()
	}
	return sc
}

func errorView(err error) *ErrorView {
	var re *redemption.Error
	if errors.As(err, &re) {
		return &ErrorView{Kind: string(re.Kind), Step: string(re.StepID), Message: re.Message()}
	}
	return &ErrorView{Kind: "Unknown", Message: "Something went wrong while opening this health snapshot."}
}
