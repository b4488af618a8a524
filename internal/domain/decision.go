package domain

// DeliveryAction is the outcome of the push decision engine for one review.
type DeliveryAction string

const (
	ActionSkip       DeliveryAction = "SKIP"
	ActionNew        DeliveryAction = "NEW"
	ActionHistorical DeliveryAction = "HISTORICAL"
	ActionUpdated    DeliveryAction = "UPDATED"
)

func (a DeliveryAction) String() string { return string(a) }

// Kind maps a delivery action to the kind stamped on a delivered review.
// Skip has no kind.
func (a DeliveryAction) Kind() DeliveryKind {
	switch a {
	case ActionNew:
		return DeliveryKindNew
	case ActionHistorical:
		return DeliveryKindHistorical
	case ActionUpdated:
		return DeliveryKindUpdated
	}
	return ""
}

// DeliveryDecision is ephemeral: it is produced per fetched review and
// consumed by the sync service in the same cycle, never persisted.
type DeliveryDecision struct {
	Review *Review
	Action DeliveryAction
	Reason string

	// MarkDelivered is set on skip decisions that must still flag the
	// stored review as delivered so it is not reconsidered next cycle.
	MarkDelivered bool
}

// ShouldDeliver reports whether the decision produces an outbound message.
func (d DeliveryDecision) ShouldDeliver() bool {
	return d.Action == ActionNew || d.Action == ActionHistorical || d.Action == ActionUpdated
}
