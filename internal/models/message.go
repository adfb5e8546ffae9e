package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind is the closed set of message classes moving through the
// transport. Dispatch on kind is an explicit switch; there is no
// runtime type inspection anywhere in the pipeline.
type MessageKind string

const (
	KindSubmission       MessageKind = "submission"
	KindStatusTransition MessageKind = "status_transition"
	KindWinnerTrigger    MessageKind = "winner_trigger"
	KindVerification     MessageKind = "verification"
	KindNotification     MessageKind = "notification"
)

// KindHeader carries the message kind as a transport header so
// consumers and the dead-letter router can dispatch without peeking
// into payloads.
const KindHeader = "Contestpipe-Kind"

// PriorityHeader carries the delivery-priority attribute on the
// high-priority channel.
const PriorityHeader = "Contestpipe-Priority"

// SubmissionEnvelope is the transport payload for one verified
// submission.
type SubmissionEnvelope struct {
	CompetitionId string
	Email         string
	FormData      map[string]string
}

// Wire field lists are written out by hand per kind so format changes
// stay auditable.

func (e SubmissionEnvelope) MarshalWire() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"competitionId": e.CompetitionId,
		"email":         e.Email,
		"formData":      e.FormData,
	})
}

func UnmarshalSubmissionEnvelope(data []byte) (*SubmissionEnvelope, error) {
	var raw struct {
		CompetitionId string            `json:"competitionId"`
		Email         string            `json:"email"`
		FormData      map[string]string `json:"formData"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed submission envelope: %w", err)
	}
	if raw.CompetitionId == "" {
		return nil, fmt.Errorf("submission envelope missing competitionId")
	}
	return &SubmissionEnvelope{
		CompetitionId: raw.CompetitionId,
		Email:         raw.Email,
		FormData:      raw.FormData,
	}, nil
}

// StatusControlMessage drives one delayed lifecycle transition.
type StatusControlMessage struct {
	CompetitionId  string
	TargetStatus   string
	CreatedAt      time.Time
	DelayMs        int64
	OrganizerEmail string
}

func (m StatusControlMessage) MarshalWire() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"competitionId":  m.CompetitionId,
		"targetStatus":   m.TargetStatus,
		"createdAt":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"delayMs":        m.DelayMs,
		"organizerEmail": m.OrganizerEmail,
	})
}

func UnmarshalStatusControlMessage(data []byte) (*StatusControlMessage, error) {
	var raw struct {
		CompetitionId  string `json:"competitionId"`
		TargetStatus   string `json:"targetStatus"`
		CreatedAt      string `json:"createdAt"`
		DelayMs        int64  `json:"delayMs"`
		OrganizerEmail string `json:"organizerEmail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed status control message: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("malformed createdAt in status control message: %w", err)
	}
	return &StatusControlMessage{
		CompetitionId:  raw.CompetitionId,
		TargetStatus:   raw.TargetStatus,
		CreatedAt:      createdAt,
		DelayMs:        raw.DelayMs,
		OrganizerEmail: raw.OrganizerEmail,
	}, nil
}

// DueAt is the instant the transition should be applied.
func (m StatusControlMessage) DueAt() time.Time {
	return m.CreatedAt.Add(time.Duration(m.DelayMs) * time.Millisecond)
}

// DeadLetterEntry is the original submission payload annotated with
// the permanent failure that sent it here.
type DeadLetterEntry struct {
	Envelope SubmissionEnvelope
	Error    string
	FailedAt time.Time
}

func (e DeadLetterEntry) MarshalWire() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"competitionId": e.Envelope.CompetitionId,
		"email":         e.Envelope.Email,
		"formData":      e.Envelope.FormData,
		"error":         e.Error,
		"failedAt":      e.FailedAt.UTC().Format(time.RFC3339Nano),
	})
}
