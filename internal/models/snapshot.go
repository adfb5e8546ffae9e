package models

import (
	"fmt"
	"time"
)

// StatsSnapshot reconciles the three independently-updated counters for
// one competition at one instant. Immutable once captured.
type StatsSnapshot struct {
	SnapshotId     string    `dynamodbav:"snapshot_id"`
	CompetitionId  string    `dynamodbav:"competition_id"`
	InitiatedCount int64     `dynamodbav:"initiated_count"`
	ProcessedCount int64     `dynamodbav:"processed_count"`
	FailedCount    int64     `dynamodbav:"failed_count"`
	CapturedAt     time.Time `dynamodbav:"captured_at"`

	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

func SnapshotSK(capturedAt time.Time) string {
	return fmt.Sprintf("SNAPSHOT#%s", capturedAt.UTC().Format(time.RFC3339Nano))
}
