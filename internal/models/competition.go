package models

import (
	"fmt"
	"time"
)

type Competition struct {
	CompetitionId   string            `dynamodbav:"competition_id"`
	Title           string            `dynamodbav:"title"`
	OrganizerEmail  string            `dynamodbav:"organizer_email"`
	Status          CompetitionStatus `dynamodbav:"status"`
	StartsAt        time.Time         `dynamodbav:"starts_at"`
	EndsAt          time.Time         `dynamodbav:"ends_at"`
	NumberOfWinners int               `dynamodbav:"number_of_winners"`
	FormSchema      map[string]string `dynamodbav:"form_schema"`
	CreatedAt       time.Time         `dynamodbav:"created_at"`
	UpdatedAt       time.Time         `dynamodbav:"updated_at"`

	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`
}

// CompetitionStatus is the ordered lifecycle position of a competition.
// The integer value doubles as the lifecycle ordering; Cancelled sits
// outside the order as the escape hatch.
type CompetitionStatus int

const (
	StatusDraft CompetitionStatus = iota
	StatusScheduled
	StatusRunning
	StatusSubmissionsEnded
	StatusWinnersGenerated
	StatusWinnersAnnounced
	StatusArchived
	StatusCancelled
)

var competitionStatusNames = map[CompetitionStatus]string{
	StatusDraft:            "draft",
	StatusScheduled:        "scheduled",
	StatusRunning:          "running",
	StatusSubmissionsEnded: "submissions_ended",
	StatusWinnersGenerated: "winners_generated",
	StatusWinnersAnnounced: "winners_announced",
	StatusArchived:         "archived",
	StatusCancelled:        "cancelled",
}

var competitionStatusValues = func() map[string]CompetitionStatus {
	m := make(map[string]CompetitionStatus, len(competitionStatusNames))
	for k, v := range competitionStatusNames {
		m[v] = k
	}
	return m
}()

func (s CompetitionStatus) String() string {
	return competitionStatusNames[s]
}

// ParseCompetitionStatus maps a wire value to its status. ok is false
// for anything outside the recognized set.
func ParseCompetitionStatus(value string) (CompetitionStatus, bool) {
	s, ok := competitionStatusValues[value]
	return s, ok
}

// IsTerminal reports whether no further transitions may leave s.
func (s CompetitionStatus) IsTerminal() bool {
	return s == StatusArchived || s == StatusCancelled
}

// IsPublic reports whether the status is rendered on public pages,
// which controls whether status notifications carry a public fragment.
func (s CompetitionStatus) IsPublic() bool {
	switch s {
	case StatusRunning, StatusSubmissionsEnded, StatusWinnersAnnounced:
		return true
	}
	return false
}

// Key handlers
func CompetitionPK(competitionID string) string {
	return fmt.Sprintf("COMPETITION#%s", competitionID)
}

func MetaSK() string {
	return "META"
}

func StatusGSI1PK(status CompetitionStatus) string {
	return fmt.Sprintf("STATUS#%s", status)
}

func StartTimeGSI1SK(startTime string) string {
	return fmt.Sprintf("START#%s", startTime)
}
