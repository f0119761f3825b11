// internal/policy/escalation.go
package policy

import (
	"fmt"
	"sort"
	"time"
)

// ===============================
// ESCALATION POLICY
// ===============================

// Tier maps one violation-count threshold to a ban duration. A tier fires
// only when the accumulated violation count EQUALS its threshold, never on
// counts above it. That keeps the decision idempotent under retries: a
// subject already banned at tier N does not get re-banned on count N+1.
type Tier struct {
	Threshold   int64
	BanDuration time.Duration
	UserMessage string
	AlertReason string
	ReasonCode  string
}

// Decision is the outcome of evaluating a violation count against the tiers.
type Decision struct {
	Ban         bool
	BanDuration time.Duration
	UserMessage string
	AlertReason string
	ReasonCode  string
}

// Escalation holds an ordered set of tiers. Zero tiers is valid and means
// violations accumulate without ever triggering a ban.
type Escalation struct {
	tiers []Tier
}

// DefaultTiers returns the standard three-step escalation ladder.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Threshold:   60,
			BanDuration: time.Hour,
			UserMessage: "Too many requests. Your access is suspended for 1 hour.",
			AlertReason: "repeated rate limit violations (1 hour ban)",
			ReasonCode:  "RATE_VIOLATION_HOUR",
		},
		{
			Threshold:   100,
			BanDuration: 30 * 24 * time.Hour,
			UserMessage: "Repeated abuse detected. Your access is suspended for 1 month.",
			AlertReason: "sustained rate limit violations (1 month ban)",
			ReasonCode:  "RATE_VIOLATION_MONTH",
		},
		{
			Threshold:   300,
			BanDuration: 10 * 365 * 24 * time.Hour,
			UserMessage: "Severe abuse detected. Your access is suspended indefinitely.",
			AlertReason: "extreme rate limit violations (long-term ban)",
			ReasonCode:  "RATE_VIOLATION_LONG",
		},
	}
}

// NewEscalation creates a policy from the given tiers. Tiers are kept sorted
// by ascending threshold; duplicate thresholds are rejected because two tiers
// firing on the same count would be ambiguous.
func NewEscalation(tiers []Tier) (*Escalation, error) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	for i, t := range sorted {
		if t.Threshold <= 0 {
			return nil, fmt.Errorf("tier threshold must be positive, got %d", t.Threshold)
		}
		if t.BanDuration <= 0 {
			return nil, fmt.Errorf("tier ban duration must be positive, got %s", t.BanDuration)
		}
		if i > 0 && sorted[i-1].Threshold == t.Threshold {
			return nil, fmt.Errorf("duplicate tier threshold %d", t.Threshold)
		}
	}

	return &Escalation{tiers: sorted}, nil
}

// MustEscalation is like NewEscalation but panics on invalid tiers.
// Intended for wiring with known-good defaults.
func MustEscalation(tiers []Tier) *Escalation {
	e, err := NewEscalation(tiers)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate returns the decision for the given accumulated violation count.
// Counts between thresholds, below the lowest, or above the highest produce
// no action.
func (e *Escalation) Evaluate(violations int64) Decision {
	for _, t := range e.tiers {
		if violations == t.Threshold {
			return Decision{
				Ban:         true,
				BanDuration: t.BanDuration,
				UserMessage: t.UserMessage,
				AlertReason: t.AlertReason,
				ReasonCode:  t.ReasonCode,
			}
		}
		if violations < t.Threshold {
			break
		}
	}
	return Decision{}
}

// Tiers returns a copy of the configured tiers in ascending threshold order.
func (e *Escalation) Tiers() []Tier {
	out := make([]Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}
