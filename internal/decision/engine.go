// Package decision classifies fetched reviews against their stored versions
// into delivery actions. The engine is pure: no repository or channel access.
package decision

import (
	"time"

	"github.com/kursadbilgin/review-relay/internal/domain"
)

const defaultHistoricalThreshold = 24 * time.Hour

// Policy holds the configuration flags that drive push decisions.
type Policy struct {
	PushNew                bool
	PushUpdated            bool
	PushHistorical         bool
	MarkHistoricalAsPushed bool
	HistoricalThreshold    time.Duration
}

// Engine evaluates one fetched review at a time. Safe for concurrent use.
type Engine struct {
	policy Policy
	now    func() time.Time
}

func NewEngine(policy Policy) *Engine {
	if policy.HistoricalThreshold <= 0 {
		policy.HistoricalThreshold = defaultHistoricalThreshold
	}

	return &Engine{
		policy: policy,
		now:    time.Now,
	}
}

// Decide classifies a freshly fetched review given its stored version, which
// may be nil when the review has never been seen. It never errors: unexpected
// absent fields compare as unchanged.
func (e *Engine) Decide(fresh *domain.Review, existing *domain.Review) domain.DeliveryDecision {
	if fresh == nil {
		return domain.DeliveryDecision{Action: domain.ActionSkip, Reason: "no review"}
	}

	if existing == nil {
		return e.decideUnseen(fresh)
	}

	// A developer response appearing for the first time is the most
	// actionable change and overrides the PushUpdated flag.
	if existing.Delivered && !existing.HasResponse() && fresh.HasResponse() {
		return domain.DeliveryDecision{
			Review: fresh,
			Action: domain.ActionUpdated,
			Reason: "developer response added",
		}
	}

	if existing.Delivered && fresh.ContentEquals(existing) {
		return domain.DeliveryDecision{Review: fresh, Action: domain.ActionSkip, Reason: "no change"}
	}

	if existing.Delivered && e.policy.PushUpdated {
		return domain.DeliveryDecision{
			Review: fresh,
			Action: domain.ActionUpdated,
			Reason: "content changed",
		}
	}

	if !existing.Delivered {
		return domain.DeliveryDecision{Review: fresh, Action: domain.ActionSkip, Reason: "previously evaluated, not delivered"}
	}

	return domain.DeliveryDecision{Review: fresh, Action: domain.ActionSkip, Reason: "updates disabled"}
}

func (e *Engine) decideUnseen(fresh *domain.Review) domain.DeliveryDecision {
	if e.policy.PushNew {
		return domain.DeliveryDecision{Review: fresh, Action: domain.ActionNew, Reason: "new review"}
	}

	historical := fresh.Age(e.now()) > e.policy.HistoricalThreshold
	if historical && e.policy.PushHistorical {
		return domain.DeliveryDecision{Review: fresh, Action: domain.ActionHistorical, Reason: "historical backfill"}
	}

	return domain.DeliveryDecision{
		Review:        fresh,
		Action:        domain.ActionSkip,
		Reason:        "push disabled",
		MarkDelivered: historical && e.policy.MarkHistoricalAsPushed,
	}
}
