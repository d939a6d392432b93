package onboarding

// Status tracks how far a tenant has progressed from signup to being able
// to accept payments on its connected Stripe account.
type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusDetailsCollected     Status = "DETAILS_COLLECTED"
	StatusAccountCreated       Status = "STRIPE_ACCOUNT_CREATED"
	StatusOnboardingRequired   Status = "STRIPE_ONBOARDING_REQUIRED"
	StatusOnboardingInProgress Status = "STRIPE_ONBOARDING_IN_PROGRESS"
	StatusPendingVerification  Status = "PENDING_VERIFICATION"
	StatusComplete             Status = "ONBOARDING_COMPLETE"
	StatusRestricted           Status = "RESTRICTED"
	StatusFailed               Status = "FAILED"
	StatusAbandoned            Status = "ABANDONED"
	StatusSuspended            Status = "SUSPENDED"
)

// AccountSnapshot is the subset of a Stripe account object the state
// machine cares about. It is built from account.updated payloads or from a
// direct account fetch during a manual resync.
type AccountSnapshot struct {
	AccountID        string   `json:"account_id"`
	ChargesEnabled   bool     `json:"charges_enabled"`
	DetailsSubmitted bool     `json:"details_submitted"`
	DisabledReason   string   `json:"disabled_reason,omitempty"`
	CurrentlyDue     []string `json:"currently_due,omitempty"`
	PastDue          []string `json:"past_due,omitempty"`
}

// DetermineStatus computes the status a tenant should be in given the latest
// account snapshot. It is a pure projection of processor truth; whether the
// resulting transition is applied is decided separately by IsValidTransition.
func DetermineStatus(current Status, snap *AccountSnapshot) Status {
	if snap == nil || snap.AccountID == "" {
		// No connected account yet.
		if current == StatusCreated || current == StatusDetailsCollected {
			return current
		}
		return StatusOnboardingRequired
	}

	switch {
	case snap.ChargesEnabled && snap.DetailsSubmitted:
		return StatusComplete
	case snap.DisabledReason != "" || len(snap.PastDue) > 0:
		return StatusRestricted
	case snap.DetailsSubmitted && !snap.ChargesEnabled:
		return StatusPendingVerification
	case len(snap.CurrentlyDue) > 0 || !snap.DetailsSubmitted:
		return StatusOnboardingInProgress
	default:
		return StatusOnboardingRequired
	}
}

// transitions is the legal state graph. A computed transition absent from
// this table is ignored, which is what stops a stale account snapshot from
// moving a tenant backward.
var transitions = map[Status][]Status{
	StatusCreated:              {StatusDetailsCollected, StatusAccountCreated, StatusOnboardingRequired, StatusAbandoned},
	StatusDetailsCollected:     {StatusAccountCreated, StatusOnboardingRequired, StatusAbandoned},
	StatusAccountCreated:       {StatusOnboardingRequired, StatusOnboardingInProgress, StatusAbandoned},
	StatusOnboardingRequired:   {StatusOnboardingInProgress, StatusPendingVerification, StatusComplete, StatusRestricted, StatusAbandoned},
	StatusOnboardingInProgress: {StatusPendingVerification, StatusComplete, StatusRestricted, StatusFailed, StatusOnboardingRequired, StatusAbandoned},
	StatusPendingVerification:  {StatusComplete, StatusRestricted, StatusFailed, StatusOnboardingInProgress},
	StatusComplete:             {StatusRestricted, StatusSuspended},
	StatusRestricted:           {StatusComplete, StatusPendingVerification, StatusOnboardingInProgress, StatusFailed, StatusSuspended},
	StatusFailed:               {StatusOnboardingRequired, StatusAbandoned},
	StatusSuspended:            {StatusComplete, StatusRestricted},
	StatusAbandoned:            {StatusOnboardingRequired},
}

// IsValidTransition reports whether the state graph allows moving from one
// status to another. Self-transitions are valid no-ops.
func IsValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
