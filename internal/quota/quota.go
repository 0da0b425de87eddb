// Package quota enforces the per-tier daily study limits and defines the
// calendar day those limits reset on.
package quota

import (
	"fmt"
	"time"

	"github.com/smibbs/sparep/internal/config"
	"github.com/smibbs/sparep/internal/domain"
)

// Unlimited is returned by NewCardAllowance when the tier has no new-card cap.
const Unlimited = -1

// dayLayout is the calendar-date format sessions are keyed on.
const dayLayout = "2006-01-02"

// Limits holds the daily caps of one tier. A value <= 0 means unlimited.
type Limits struct {
	NewCardsPerDay int
	ReviewsPerDay  int
}

// DefaultLimits returns the limits used when none are configured:
// the free tier may review 20 cards and introduce 10 new ones per day,
// paid and admin users are unlimited.
func DefaultLimits() map[domain.Tier]Limits {
	return map[domain.Tier]Limits{
		domain.TierFree:  {NewCardsPerDay: 10, ReviewsPerDay: 20},
		domain.TierPaid:  {},
		domain.TierAdmin: {},
	}
}

// Policy decides whether a user may start studying and how many new cards
// they may still see today.
type Policy struct {
	limits   map[domain.Tier]Limits
	location *time.Location
}

// NewPolicy creates a Policy. Missing tiers fall back to DefaultLimits and a
// nil location means UTC.
func NewPolicy(limits map[domain.Tier]Limits, location *time.Location) (*Policy, error) {
	merged := DefaultLimits()
	for tier, l := range limits {
		if !tier.Valid() {
			return nil, domain.NewValidationError("tier", fmt.Sprintf("unknown tier %q", tier), nil)
		}
		merged[tier] = l
	}
	if location == nil {
		location = time.UTC
	}
	return &Policy{limits: merged, location: location}, nil
}

// NewPolicyFromConfig builds a Policy from the quota section of the configuration.
func NewPolicyFromConfig(cfg config.QuotaConfig) (*Policy, error) {
	location := time.UTC
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load quota timezone %q: %w", cfg.Timezone, err)
		}
		location = loc
	}

	return NewPolicy(map[domain.Tier]Limits{
		domain.TierFree:  {NewCardsPerDay: cfg.Free.NewCardsPerDay, ReviewsPerDay: cfg.Free.ReviewsPerDay},
		domain.TierPaid:  {NewCardsPerDay: cfg.Paid.NewCardsPerDay, ReviewsPerDay: cfg.Paid.ReviewsPerDay},
		domain.TierAdmin: {NewCardsPerDay: cfg.Admin.NewCardsPerDay, ReviewsPerDay: cfg.Admin.ReviewsPerDay},
	}, location)
}

// Location returns the reference timezone of the day boundary.
func (p *Policy) Location() *time.Location {
	return p.location
}

// Limits returns the limits of tier.
func (p *Policy) Limits(tier domain.Tier) (Limits, error) {
	l, ok := p.limits[tier]
	if !ok {
		return Limits{}, domain.NewValidationError("tier", fmt.Sprintf("unknown tier %q", tier), nil)
	}
	return l, nil
}

// Check returns a *domain.LimitReachedError when reviewsToday has met or
// exceeded the tier's finite daily review limit.
func (p *Policy) Check(tier domain.Tier, reviewsToday int) error {
	l, err := p.Limits(tier)
	if err != nil {
		return err
	}
	if l.ReviewsPerDay > 0 && reviewsToday >= l.ReviewsPerDay {
		return &domain.LimitReachedError{
			Tier:         tier,
			ReviewsToday: reviewsToday,
			Limit:        l.ReviewsPerDay,
		}
	}
	return nil
}

// ReviewAllowance returns how many more reviews the tier may record today,
// or Unlimited.
func (p *Policy) ReviewAllowance(tier domain.Tier, reviewsToday int) (int, error) {
	l, err := p.Limits(tier)
	if err != nil {
		return 0, err
	}
	if l.ReviewsPerDay <= 0 {
		return Unlimited, nil
	}
	return max(0, l.ReviewsPerDay-reviewsToday), nil
}

// NewCardAllowance returns how many new cards the tier may still introduce
// today, or Unlimited.
func (p *Policy) NewCardAllowance(tier domain.Tier, newToday int) (int, error) {
	l, err := p.Limits(tier)
	if err != nil {
		return 0, err
	}
	if l.NewCardsPerDay <= 0 {
		return Unlimited, nil
	}
	return max(0, l.NewCardsPerDay-newToday), nil
}

// Day returns the calendar date of t in the reference timezone.
func (p *Policy) Day(t time.Time) string {
	return t.In(p.location).Format(dayLayout)
}

// DayBounds returns the [start, end) interval of the calendar day containing t.
func (p *Policy) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(p.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location)
	return start, start.AddDate(0, 0, 1)
}
