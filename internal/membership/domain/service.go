package domain

import (
	"context"
	"errors"
	"time"

	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
)

// StatusResponse is the customer-facing membership view: current tier with
// its benefits, the live activity window, and progress toward the next tier.
type StatusResponse struct {
	Membership       Membership              `json:"membership"`
	Tier             tierdomain.Tier         `json:"tier"`
	Snapshot         activitydomain.Snapshot `json:"activity"`
	NextTier         *tierdomain.Tier        `json:"next_tier,omitempty"`
	OrdersToNextTier int64                   `json:"orders_to_next_tier,omitempty"`
	SpendToNextTier  int64                   `json:"spend_to_next_tier,omitempty"`
}

type Service interface {
	// Enroll creates an active membership at the default tier, or
	// re-activates a soft-retired one. Calling it for an already active
	// member returns the existing record.
	Enroll(ctx context.Context, customerID string) (Membership, error)

	// Get returns the membership record regardless of status.
	Get(ctx context.Context, customerID string) (Membership, error)

	// Reevaluate refreshes the customer's rolling window and moves them to
	// the tier the window supports, up or down. When no membership exists
	// and the program auto-enrolls, one is created first. The returned bool
	// reports whether the tier changed.
	Reevaluate(ctx context.Context, customerID string, asOf time.Time) (Membership, bool, error)

	Status(ctx context.Context, customerID string) (StatusResponse, error)

	// Retire soft-retires the membership; the record survives.
	Retire(ctx context.Context, customerID string) error

	// ClaimDue claims up to limit active memberships whose last evaluation
	// predates cutoff, stamping them so concurrent sweepers skip the same
	// rows. Used by the daily sweep.
	ClaimDue(ctx context.Context, cutoff time.Time, limit int) ([]Membership, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrNotEnrolled     = errors.New("not_enrolled")
)
