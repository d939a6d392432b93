package onboarding

// Action is the dashboard-facing prompt derived from the current onboarding
// state. Read-only projection; never mutates anything.
type Action struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ActionSubmitDetails   = "submit_details"
	ActionStartOnboarding = "start_onboarding"
	ActionFinishStripe    = "finish_stripe_onboarding"
	ActionWait            = "wait_for_verification"
	ActionFixRequirements = "fix_requirements"
	ActionContactSupport  = "contact_support"
	ActionNone            = "none"
)

// NextAction tells the tenant dashboard what to prompt for given the current
// status and, when available, the latest account snapshot.
func NextAction(status Status, snap *AccountSnapshot) Action {
	switch status {
	case StatusCreated:
		return Action{ActionSubmitDetails, "Tell us about your business to get started."}
	case StatusDetailsCollected, StatusOnboardingRequired, StatusAccountCreated:
		return Action{ActionStartOnboarding, "Connect your payment account to start accepting payments."}
	case StatusOnboardingInProgress:
		if snap != nil && len(snap.CurrentlyDue) > 0 {
			return Action{ActionFinishStripe, "Stripe still needs some information from you."}
		}
		return Action{ActionFinishStripe, "Finish setting up your payment account."}
	case StatusPendingVerification:
		return Action{ActionWait, "Your details are being verified. This usually takes a few minutes."}
	case StatusRestricted:
		if snap != nil && snap.DisabledReason != "" {
			return Action{ActionFixRequirements, "Your payment account is restricted: " + snap.DisabledReason}
		}
		return Action{ActionFixRequirements, "Your payment account needs attention before you can accept payments."}
	case StatusComplete:
		return Action{ActionNone, "You're all set to accept payments."}
	case StatusFailed, StatusSuspended, StatusAbandoned:
		return Action{ActionContactSupport, "Contact support to reactivate your account."}
	default:
		return Action{ActionContactSupport, "Contact support."}
	}
}
