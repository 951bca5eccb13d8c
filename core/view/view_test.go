package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthsnap/core/redemption"
	"healthsnap/core/snapshot"
	"healthsnap/core/token"
	"healthsnap/core/verification"
)

func TestMaterializeFullPayload(t *testing.T) {
	p := &snapshot.Payload{
		Symptoms: []snapshot.Symptom{
			{ID: 1, Name: "Headache", Severity: snapshot.SeverityMild, Date: "2024-04-30"},
			{ID: 2, Name: "Chest pain", Severity: snapshot.SeveritySevere, Date: "2024-04-28"},
		},
		VitalSigns: &snapshot.VitalSigns{
			BloodPressure: "120/80",
			HeartRate:     "72",
			Temperature:   "98.6",
			LastChecked:   time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC),
		},
		Medications: []snapshot.Medication{
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "daily"},
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "daily"},
		},
	}
	vm := Materialize(p)

	assert.False(t, vm.Empty)
	require.Len(t, vm.Symptoms, 2)
	assert.Equal(t, ToneMild, vm.Symptoms[0].Tone)
	assert.Equal(t, ToneSevere, vm.Symptoms[1].Tone)

	assert.True(t, vm.Vitals.Present)
	assert.Equal(t, 120, vm.Vitals.Systolic)
	assert.Equal(t, 80, vm.Vitals.Diastolic)
	assert.Equal(t, "72 bpm", vm.Vitals.HeartRate)
	assert.Equal(t, "98.6°F", vm.Vitals.Temperature)
	assert.Equal(t, "2024-04-30T08:15:00Z", vm.Vitals.LastChecked)

	// duplicate medications stay distinct by position
	require.Len(t, vm.Medications, 2)
	assert.Equal(t, 0, vm.Medications[0].Index)
	assert.Equal(t, 1, vm.Medications[1].Index)
}

func TestMaterializeToleratesMissingSections(t *testing.T) {
	vm := Materialize(&snapshot.Payload{
		Symptoms: []snapshot.Symptom{{ID: 1, Name: "Cough", Severity: snapshot.SeverityModerate, Date: "2024-04-30"}},
	})
	assert.False(t, vm.Vitals.Present)
	assert.Equal(t, NotRecorded, vm.Vitals.BloodPressure)
	assert.Equal(t, NotRecorded, vm.Vitals.LastChecked)
	assert.Empty(t, vm.Medications)
	assert.NotNil(t, vm.Medications)
	assert.Equal(t, ToneModerate, vm.Symptoms[0].Tone)

	vm = Materialize(&snapshot.Payload{VitalSigns: &snapshot.VitalSigns{BloodPressure: "high"}})
	assert.Equal(t, "high", vm.Vitals.BloodPressure)
	assert.Zero(t, vm.Vitals.Systolic)
	assert.Equal(t, NotRecorded, vm.Vitals.HeartRate)

	vm = Materialize(nil)
	assert.True(t, vm.Empty)
	assert.NotNil(t, vm.Symptoms)
}

func TestScreenForIsExclusive(t *testing.T) {
	assert.Equal(t, ScreenIdle, ScreenFor(nil, nil, nil).Kind)

	machine := &verification.Machine{Pipeline: verification.SimulatedPipeline(verification.UniformDelays(time.Millisecond))}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &redemption.Controller{Machine: machine, Now: func() time.Time { return now }}

	s := c.Start()
	progress := ScreenFor(s, nil, nil)
	assert.Equal(t, ScreenProgress, progress.Kind)
	assert.Nil(t, progress.Snapshot)
	assert.Len(t, progress.Steps, 3)

	enc := token.Encoder{Now: func() time.Time { return now }}
	opaque, _, err := enc.Encode("p-001", 3600, snapshot.Payload{})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), s, opaque)
	require.NoError(t, err)
	done := ScreenFor(s, res, nil)
	assert.Equal(t, ScreenSnapshot, done.Kind)
	require.NotNil(t, done.Snapshot)
	assert.Equal(t, "p-001", done.Snapshot.SubjectID)
	assert.True(t, done.Snapshot.View.Empty)
	assert.Nil(t, done.Error)

	now = now.Add(2 * time.Hour)
	res, err = c.Redeem(context.Background(), opaque)
	failed := ScreenFor(nil, res, err)
	assert.Equal(t, ScreenError, failed.Kind)
	assert.Nil(t, failed.Snapshot)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "Expired", failed.Error.Kind)
	assert.Equal(t, "This health snapshot has expired. Please request a new one from the patient.", failed.Error.Message)

	generic := ScreenFor(nil, nil, errors.New("boom"))
	assert.Equal(t, ScreenError, generic.Kind)
}
