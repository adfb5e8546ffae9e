package routing

// Tier is the urgency classification of a submission, derived solely
// from the seconds remaining until the competition closes. Tier 0 is
// the only tier routed to the low-priority channel.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierModerate
	TierElevated
	TierHigh
	TierCritical
)

// Classify maps seconds-remaining to a tier. Pure and branch-only; it
// sits on the hot admission path and is called per submission.
// Negative values mean the close is already past and classify as most
// urgent.
func Classify(secondsRemaining int64) Tier {
	switch {
	case secondsRemaining <= 10:
		return TierCritical
	case secondsRemaining <= 20:
		return TierHigh
	case secondsRemaining <= 30:
		return TierElevated
	case secondsRemaining <= 60:
		return TierModerate
	case secondsRemaining <= 120:
		return TierLow
	default:
		return TierNone
	}
}
