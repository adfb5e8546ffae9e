package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionEnvelopeRoundTrip(t *testing.T) {
	data, err := SubmissionEnvelope{
		CompetitionId: "comp-1",
		Email:         "entrant@example.com",
		FormData:      map[string]string{"answer": "42"},
	}.MarshalWire()
	require.NoError(t, err)

	envelope, err := UnmarshalSubmissionEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "comp-1", envelope.CompetitionId)
	assert.Equal(t, map[string]string{"answer": "42"}, envelope.FormData)
}

func TestSubmissionEnvelopeRejectsMissingCompetition(t *testing.T) {
	_, err := UnmarshalSubmissionEnvelope([]byte(`{"email":"x@example.com"}`))
	require.Error(t, err)

	_, err = UnmarshalSubmissionEnvelope([]byte("not json"))
	require.Error(t, err)
}

func TestStatusControlMessageDueAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	control := StatusControlMessage{
		CompetitionId: "comp-1",
		TargetStatus:  "running",
		CreatedAt:     created,
		DelayMs:       90_000,
	}

	assert.Equal(t, created.Add(90*time.Second), control.DueAt())

	data, err := control.MarshalWire()
	require.NoError(t, err)

	decoded, err := UnmarshalStatusControlMessage(data)
	require.NoError(t, err)
	assert.Equal(t, control.DueAt(), decoded.DueAt())
}

func TestParseCompetitionStatus(t *testing.T) {
	for status, name := range map[CompetitionStatus]string{
		StatusDraft:     "draft",
		StatusRunning:   "running",
		StatusArchived:  "archived",
		StatusCancelled: "cancelled",
	} {
		parsed, ok := ParseCompetitionStatus(name)
		require.True(t, ok, name)
		assert.Equal(t, status, parsed)
	}

	_, ok := ParseCompetitionStatus("exploded")
	assert.False(t, ok)
}

func TestIdentityKeyIsDeterministic(t *testing.T) {
	a := AdmissionRecordKey("comp-1", "a@example.com")
	b := AdmissionRecordKey("comp-1", "a@example.com")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, AdmissionRecordKey("comp-2", "a@example.com"))
	assert.NotEqual(t, a, AdmissionRecordKey("comp-1", "b@example.com"))
}
