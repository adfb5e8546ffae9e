package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// AdmissionStatus is the state of a cache-side admission record.
type AdmissionStatus string

const (
	AdmissionPendingVerification AdmissionStatus = "pending_verification"
	AdmissionVerified            AdmissionStatus = "verified"
)

// AdmissionRecord is the cache entity guarding one (competition, email)
// identity. It is NOT the durable submission; that row is written later
// by the queue consumer.
type AdmissionRecord struct {
	CompetitionId    string            `json:"competitionId"`
	Status           AdmissionStatus   `json:"status"`
	FormData         map[string]string `json:"formData,omitempty"`
	CompetitionEndTs int64             `json:"competitionEndTs"`
	CreatedAt        int64             `json:"createdAt"`
}

// VerificationToken is the cache entity proving control of an email
// address. Single use, deleted on redemption.
type VerificationToken struct {
	Email         string `json:"email"`
	CompetitionId string `json:"competitionId"`
	IssuedAt      int64  `json:"issuedAt"`
}

// Submission is the durable row committed by the queue consumer once a
// verified submission is processed.
type Submission struct {
	CompetitionId string            `dynamodbav:"competition_id"`
	Email         string            `dynamodbav:"email"`
	FormData      map[string]string `dynamodbav:"form_data"`
	PriorityTier  int               `dynamodbav:"priority_tier"`
	CreatedAt     time.Time         `dynamodbav:"created_at"`

	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

// Cache key formats. These are part of the external contract and must
// not drift: the web layer and operational tooling read them too.

func SubmissionCountKey(competitionID string) string {
	return fmt.Sprintf("competition:%s:submissions:count", competitionID)
}

func AdmissionRecordKey(competitionID, email string) string {
	return fmt.Sprintf("competition:%s:submission:%s", competitionID, identityHash(competitionID, email))
}

func VerificationTokenKey(token string) string {
	return fmt.Sprintf("verification_token:%s", token)
}

func identityHash(competitionID, email string) string {
	sum := sha256.Sum256([]byte(competitionID + ":" + email))
	return hex.EncodeToString(sum[:])
}

// Submission row keys
func SubmissionSK(competitionID, email string) string {
	return fmt.Sprintf("SUBMISSION#%s", identityHash(competitionID, email))
}

func SubmissionSKPrefix() string {
	return "SUBMISSION#"
}
