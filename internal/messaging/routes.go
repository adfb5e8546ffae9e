package messaging

import "fmt"

// Streams
const (
	SubmissionsStream   = "COMPETITION_SUBMISSIONS"
	StatusStream        = "COMPETITION_STATUS"
	NotificationsStream = "COMPETITION_NOTIFICATIONS"
)

// Routes maps the pipeline's logical routing keys onto concrete channel
// names. It is injected rather than read from package globals so tests
// and deployments can substitute alternate topologies.
type Routes struct {
	LowPrioritySubmissions  string
	HighPrioritySubmissions string
	StatusControl           string
	Notifications           string
	DeadLetterPrefix        string
}

func DefaultRoutes() Routes {
	return Routes{
		LowPrioritySubmissions:  "low_priority_submission",
		HighPrioritySubmissions: "high_priority_submission",
		StatusControl:           "competition_status",
		Notifications:           "competition_notifications",
		DeadLetterPrefix:        "dlq_competition_submission_",
	}
}

// DeadLetterChannel derives the per-competition dead-letter channel
// name. One channel per competition keeps failure volumes independently
// observable and drainable.
func (r Routes) DeadLetterChannel(competitionID string) string {
	return fmt.Sprintf("%s%s", r.DeadLetterPrefix, competitionID)
}
