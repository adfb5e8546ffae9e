package models

import (
	"fmt"
	"time"
)

// StatusTransition is one row of the append-only lifecycle audit log.
type StatusTransition struct {
	CompetitionId  string    `dynamodbav:"competition_id"`
	OldStatus      string    `dynamodbav:"old_status"`
	NewStatus      string    `dynamodbav:"new_status"`
	TransitionedAt time.Time `dynamodbav:"transitioned_at"`
	TriggeredBy    string    `dynamodbav:"triggered_by"`

	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

func TransitionSK(transitionedAt time.Time, transitionID string) string {
	return fmt.Sprintf("TRANSITION#%s#%s", transitionedAt.UTC().Format(time.RFC3339Nano), transitionID)
}
