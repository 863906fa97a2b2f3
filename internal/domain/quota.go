// Package domain contains core business types and interfaces.
//
// This file defines the monthly quota types: counters, tier limits, the
// billing-month key, and the pure limit calculator that merges tier defaults
// with in-month purchase bonuses.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Unlimited marks a counter that has no monthly cap.
const Unlimited int64 = -1

// Counter identifies one of the per-user monthly usage counters.
type Counter string

const (
	CounterStoriesCreated     Counter = "stories_created"
	CounterAssessmentUploads  Counter = "assessment_uploads"
	CounterCompetitionEntries Counter = "competition_entries"
	CounterAssessmentAttempts Counter = "assessment_attempts"
)

// Counters lists every counter in display order.
var Counters = []Counter{
	CounterStoriesCreated,
	CounterAssessmentUploads,
	CounterAssessmentAttempts,
	CounterCompetitionEntries,
}

// IsValid returns true if the counter is a recognized value.
func (c Counter) IsValid() bool {
	switch c {
	case CounterStoriesCreated, CounterAssessmentUploads,
		CounterCompetitionEntries, CounterAssessmentAttempts:
		return true
	}
	return false
}

// Label returns a human-readable name used in error messages.
func (c Counter) Label() string {
	switch c {
	case CounterStoriesCreated:
		return "story"
	case CounterAssessmentUploads:
		return "assessment"
	case CounterCompetitionEntries:
		return "competition entry"
	case CounterAssessmentAttempts:
		return "assessment attempt"
	}
	return string(c)
}

// =============================================================================
// Tiers and Limits
// =============================================================================

// Tier represents a user's subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Limits holds a cap per counter. A value of Unlimited disables the cap.
type Limits struct {
	StoriesCreated     int64 `json:"stories_created"`
	AssessmentUploads  int64 `json:"assessment_uploads"`
	AssessmentAttempts int64 `json:"assessment_attempts"`
	CompetitionEntries int64 `json:"competition_entries"`
}

// For returns the limit for a single counter.
func (l Limits) For(c Counter) int64 {
	switch c {
	case CounterStoriesCreated:
		return l.StoriesCreated
	case CounterAssessmentUploads:
		return l.AssessmentUploads
	case CounterAssessmentAttempts:
		return l.AssessmentAttempts
	case CounterCompetitionEntries:
		return l.CompetitionEntries
	}
	return 0
}

// TierLimits maps tiers to their base monthly limits.
// CompetitionEntries is left zero here; the entries cap is a single
// configured constant applied to every tier (see WithEntriesPerMonth).
var TierLimits = map[Tier]Limits{
	TierFree: {
		StoriesCreated:     3,
		AssessmentUploads:  2,
		AssessmentAttempts: 6,
	},
	TierPremium: {
		StoriesCreated:     Unlimited,
		AssessmentUploads:  20,
		AssessmentAttempts: 60,
	},
}

// GetTierLimits returns the base limits for a tier, defaulting to free for unknown tiers.
func GetTierLimits(tier Tier) Limits {
	if limits, ok := TierLimits[tier]; ok {
		return limits
	}
	return TierLimits[TierFree]
}

// WithEntriesPerMonth returns a copy of l with the competition entries cap set.
func (l Limits) WithEntriesPerMonth(n int) Limits {
	l.CompetitionEntries = int64(n)
	return l
}

// =============================================================================
// Purchases
// =============================================================================

// PurchaseType identifies what was bought.
type PurchaseType string

const (
	PurchaseTypeQuotaPack PurchaseType = "quota_pack"
)

// Bonus is the declarative payload of a purchase. Fields absent from the
// stored JSON decode as zero.
type Bonus struct {
	StoriesAdded     int64 `json:"storiesAdded,omitempty"`
	AssessmentsAdded int64 `json:"assessmentsAdded,omitempty"`
	AttemptsAdded    int64 `json:"attemptsAdded,omitempty"`
	EntriesAdded     int64 `json:"entriesAdded,omitempty"`
}

// Validate rejects negative bonus amounts.
func (b Bonus) Validate() error {
	if b.StoriesAdded < 0 || b.AssessmentsAdded < 0 || b.AttemptsAdded < 0 || b.EntriesAdded < 0 {
		return fmt.Errorf("bonus amounts must not be negative")
	}
	return nil
}

// PurchaseRecord is a purchase as recorded by the payment collaborator.
type PurchaseRecord struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         PurchaseType
	AmountCents  int64
	Currency     string
	PurchaseDate time.Time
	Bonus        Bonus
	ExternalID   string
}

// ComputeLimits merges base limits with the bonuses of every purchase made on
// or after monthStart. Unlimited base values stay unlimited.
//
// It is pure: no validation is performed on the inputs.
func ComputeLimits(base Limits, purchases []PurchaseRecord, monthStart time.Time) Limits {
	var sum Bonus
	for _, p := range purchases {
		if p.PurchaseDate.Before(monthStart) {
			continue
		}
		sum.StoriesAdded += p.Bonus.StoriesAdded
		sum.AssessmentsAdded += p.Bonus.AssessmentsAdded
		sum.AttemptsAdded += p.Bonus.AttemptsAdded
		sum.EntriesAdded += p.Bonus.EntriesAdded
	}

	return Limits{
		StoriesCreated:     addBonus(base.StoriesCreated, sum.StoriesAdded),
		AssessmentUploads:  addBonus(base.AssessmentUploads, sum.AssessmentsAdded),
		AssessmentAttempts: addBonus(base.AssessmentAttempts, sum.AttemptsAdded),
		CompetitionEntries: addBonus(base.CompetitionEntries, sum.EntriesAdded),
	}
}

func addBonus(base, bonus int64) int64 {
	if base == Unlimited {
		return Unlimited
	}
	return base + bonus
}

// =============================================================================
// Usage Counters
// =============================================================================

// MonthKey identifies a billing month as "YYYY-MM". Keys order lexically.
type MonthKey string

// MonthKeyOf returns the billing month containing t, evaluated in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// ParseMonthKey validates and returns a month key.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", fmt.Errorf("invalid month key %q: expected YYYY-MM", s)
	}
	return MonthKey(s), nil
}

// Start returns the first instant of the month in loc.
func (k MonthKey) Start(loc *time.Location) time.Time {
	t, err := time.ParseInLocation("2006-01", string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Before reports whether k is an earlier month than other.
func (k MonthKey) Before(other MonthKey) bool {
	return k < other
}

func (k MonthKey) String() string {
	return string(k)
}

// UsageCounters holds a user's consumption for one billing month.
type UsageCounters struct {
	UserID             uuid.UUID `json:"user_id"`
	MonthKey           MonthKey  `json:"month_key"`
	StoriesCreated     int64     `json:"stories_created"`
	AssessmentUploads  int64     `json:"assessment_uploads"`
	AssessmentAttempts int64     `json:"assessment_attempts"`
	CompetitionEntries int64     `json:"competition_entries"`
}

// Get returns the value of a single counter.
func (u UsageCounters) Get(c Counter) int64 {
	switch c {
	case CounterStoriesCreated:
		return u.StoriesCreated
	case CounterAssessmentUploads:
		return u.AssessmentUploads
	case CounterAssessmentAttempts:
		return u.AssessmentAttempts
	case CounterCompetitionEntries:
		return u.CompetitionEntries
	}
	return 0
}

// ForMonth returns the counters as they apply to month. Counters stored for
// an earlier month are reported as zero.
func (u UsageCounters) ForMonth(month MonthKey) UsageCounters {
	if u.MonthKey.Before(month) {
		return UsageCounters{UserID: u.UserID, MonthKey: month}
	}
	return u
}

// UsageReport combines counters with the effective limits for a month.
type UsageReport struct {
	MonthKey MonthKey      `json:"month_key"`
	Usage    UsageCounters `json:"usage"`
	Limits   Limits        `json:"limits"`
}

// Remaining returns how many units of c are left, or Unlimited.
func (r UsageReport) Remaining(c Counter) int64 {
	return Remaining(r.Limits.For(c), r.Usage.Get(c))
}

// Remaining returns limit-used floored at zero, or Unlimited.
func Remaining(limit, used int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// ConsumeResult reports the outcome of a check-and-increment.
type ConsumeResult struct {
	Allowed   bool    `json:"allowed"`
	Counter   Counter `json:"counter"`
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Remaining int64   `json:"remaining"`
}
