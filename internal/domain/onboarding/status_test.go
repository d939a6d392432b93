package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineStatusWithoutAccount(t *testing.T) {
	assert.Equal(t, StatusCreated, DetermineStatus(StatusCreated, nil))
	assert.Equal(t, StatusDetailsCollected, DetermineStatus(StatusDetailsCollected, nil))
	assert.Equal(t, StatusOnboardingRequired, DetermineStatus(StatusOnboardingInProgress, nil))
	assert.Equal(t, StatusOnboardingRequired, DetermineStatus(StatusAccountCreated, &AccountSnapshot{}))
}

func TestDetermineStatusPriorities(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		snap    AccountSnapshot
		want    Status
	}{
		{
			name:    "charges enabled and details submitted wins over everything",
			current: StatusOnboardingInProgress,
			snap: AccountSnapshot{
				AccountID:        "acct_1",
				ChargesEnabled:   true,
				DetailsSubmitted: true,
				PastDue:          []string{"individual.id_number"},
			},
			want: StatusComplete,
		},
		{
			name:    "disabled reason means restricted",
			current: StatusComplete,
			snap: AccountSnapshot{
				AccountID:      "acct_1",
				DisabledReason: "requirements.past_due",
			},
			want: StatusRestricted,
		},
		{
			name:    "past due requirement means restricted",
			current: StatusOnboardingInProgress,
			snap: AccountSnapshot{
				AccountID:        "acct_1",
				DetailsSubmitted: true,
				PastDue:          []string{"individual.verification.document"},
			},
			want: StatusRestricted,
		},
		{
			name:    "details submitted but charges disabled means pending verification",
			current: StatusOnboardingInProgress,
			snap: AccountSnapshot{
				AccountID:        "acct_1",
				DetailsSubmitted: true,
			},
			want: StatusPendingVerification,
		},
		{
			name:    "currently due requirements mean in progress",
			current: StatusOnboardingRequired,
			snap: AccountSnapshot{
				AccountID:    "acct_1",
				CurrentlyDue: []string{"business_profile.url"},
			},
			want: StatusOnboardingInProgress,
		},
		{
			name:    "details not submitted means in progress",
			current: StatusOnboardingRequired,
			snap:    AccountSnapshot{AccountID: "acct_1"},
			want:    StatusOnboardingInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineStatus(tt.current, &tt.snap))
		})
	}
}

func TestDetermineStatusInProgressToComplete(t *testing.T) {
	snap := &AccountSnapshot{
		AccountID:        "acct_1",
		ChargesEnabled:   true,
		DetailsSubmitted: true,
	}
	assert.Equal(t, StatusComplete, DetermineStatus(StatusOnboardingInProgress, snap))
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StatusComplete, StatusRestricted))
	assert.True(t, IsValidTransition(StatusRestricted, StatusComplete))
	assert.True(t, IsValidTransition(StatusOnboardingInProgress, StatusComplete))
	assert.True(t, IsValidTransition(StatusCreated, StatusCreated), "self transition is a no-op")

	assert.False(t, IsValidTransition(StatusComplete, StatusCreated), "completed tenants never move backward")
	assert.False(t, IsValidTransition(StatusComplete, StatusOnboardingRequired))
	assert.False(t, IsValidTransition(StatusAbandoned, StatusComplete))
}

func TestNextActionProjection(t *testing.T) {
	assert.Equal(t, ActionSubmitDetails, NextAction(StatusCreated, nil).Code)
	assert.Equal(t, ActionStartOnboarding, NextAction(StatusDetailsCollected, nil).Code)
	assert.Equal(t, ActionWait, NextAction(StatusPendingVerification, nil).Code)
	assert.Equal(t, ActionNone, NextAction(StatusComplete, nil).Code)

	restricted := NextAction(StatusRestricted, &AccountSnapshot{DisabledReason: "listed"})
	assert.Equal(t, ActionFixRequirements, restricted.Code)
	assert.Contains(t, restricted.Message, "listed")
}
