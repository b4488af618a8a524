package domain

import (
	"fmt"
	"strings"
	"time"
)

// CardState is the interaction state of one delivered chat card.
type CardState string

const (
	CardStateInitial      CardState = "INITIAL"
	CardStateReplying     CardState = "REPLYING"
	CardStateReplied      CardState = "REPLIED"
	CardStateEditingReply CardState = "EDITING_REPLY"
)

func (s CardState) String() string { return string(s) }

func (s CardState) IsValid() bool {
	switch s {
	case CardStateInitial, CardStateReplying, CardStateReplied, CardStateEditingReply:
		return true
	}
	return false
}

func ParseCardStateFromString(s string) (CardState, error) {
	st := CardState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid card state %q", ErrValidation, s)
	}
	return st, nil
}

// CanTransition reports whether a user action may move a card from one state
// to another. Re-entering the same reply-form state is idempotent.
func (s CardState) CanTransition(to CardState) bool {
	switch s {
	case CardStateInitial:
		return to == CardStateReplying
	case CardStateReplying:
		return to == CardStateReplying || to == CardStateReplied
	case CardStateReplied:
		return to == CardStateEditingReply
	case CardStateEditingReply:
		return to == CardStateEditingReply || to == CardStateReplied
	}
	return false
}

// CardInteraction tracks one delivered message through its reply lifecycle.
// It is created when a review is first delivered and lives as long as the
// review does, caching the last rendered UI state.
type CardInteraction struct {
	ReviewID         string      `gorm:"type:varchar(64);primaryKey"`
	ChannelMessageID string      `gorm:"type:varchar(128);primaryKey"`
	State            CardState   `gorm:"type:varchar(16);not null"`
	PendingReplyText *string     `gorm:"type:text"`
	ReplyStatus      ReplyStatus `gorm:"type:varchar(16);not null;default:'NONE'"`
	LastError        *string     `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (c *CardInteraction) Validate() error {
	if strings.TrimSpace(c.ReviewID) == "" {
		return fmt.Errorf("%w: review id is required", ErrValidation)
	}
	if strings.TrimSpace(c.ChannelMessageID) == "" {
		return fmt.Errorf("%w: channel message id is required", ErrValidation)
	}
	if !c.State.IsValid() {
		return fmt.Errorf("%w: invalid card state %q", ErrValidation, c.State)
	}
	if !c.ReplyStatus.IsValid() {
		return fmt.Errorf("%w: invalid reply status %q", ErrValidation, c.ReplyStatus)
	}
	return nil
}
