// Package card tracks the interaction lifecycle of delivered chat cards:
// initial -> replying -> replied -> editingReply. The repository row is the
// authoritative state; an in-memory cache fronts it so form-open transitions
// stay cheap and never touch the database.
package card

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/review-relay/internal/domain"
	"github.com/kursadbilgin/review-relay/internal/repository"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	cacheTTL             = time.Hour
	cacheCleanupInterval = 10 * time.Minute
)

// Machine manages one authoritative interaction state per
// (reviewID, channelMessageID) pair.
type Machine struct {
	cards  repository.CardInteractionRepository
	cache  *gocache.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewMachine(cards repository.CardInteractionRepository, logger *zap.Logger) (*Machine, error) {
	if cards == nil {
		return nil, fmt.Errorf("card interaction repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Machine{
		cards:  cards,
		cache:  gocache.New(cacheTTL, cacheCleanupInterval),
		logger: logger,
		now:    time.Now,
	}, nil
}

// CreateInitial records the interaction state for a freshly delivered card.
func (m *Machine) CreateInitial(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	card := &domain.CardInteraction{
		ReviewID:         reviewID,
		ChannelMessageID: channelMessageID,
		State:            domain.CardStateInitial,
		ReplyStatus:      domain.ReplyStatusNone,
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	if err := m.cards.Upsert(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to persist initial card state: %w", err)
	}

	m.cachePut(card)
	return card, nil
}

// Current returns the authoritative state for a card, cache first.
func (m *Machine) Current(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	if cached, ok := m.cache.Get(cacheKey(reviewID, channelMessageID)); ok {
		if card, ok := cached.(*domain.CardInteraction); ok {
			copied := *card
			return &copied, nil
		}
	}

	card, err := m.cards.Get(ctx, reviewID, channelMessageID)
	if err != nil {
		return nil, err
	}

	m.cachePut(card)
	copied := *card
	return &copied, nil
}

// OpenReply moves a card to the replying state. The transition is client-side
// and idempotent: it updates only the cache, never the repository.
func (m *Machine) OpenReply(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	card, err := m.Current(ctx, reviewID, channelMessageID)
	if err != nil {
		return nil, err
	}

	if !card.State.CanTransition(domain.CardStateReplying) {
		return nil, fmt.Errorf("%w: cannot open reply form from state %s", domain.ErrConflict, card.State)
	}

	card.State = domain.CardStateReplying
	m.cachePut(card)
	return card, nil
}

// BeginEdit re-opens a replied card for editing, pre-filled with the current
// reply text. Cache-only, like OpenReply.
func (m *Machine) BeginEdit(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	card, err := m.Current(ctx, reviewID, channelMessageID)
	if err != nil {
		return nil, err
	}

	if !card.State.CanTransition(domain.CardStateEditingReply) {
		return nil, fmt.Errorf("%w: cannot edit reply from state %s", domain.ErrConflict, card.State)
	}

	card.State = domain.CardStateEditingReply
	m.cachePut(card)
	return card, nil
}

// CheckSubmit validates a reply submission against the reply constraints and
// the card's current state, without writing anything.
func (m *Machine) CheckSubmit(ctx context.Context, reviewID string, channelMessageID string, text string) error {
	if err := domain.ValidateReplyText(text); err != nil {
		return err
	}

	card, err := m.Current(ctx, reviewID, channelMessageID)
	if err != nil {
		return err
	}

	// A submit straight from the initial card is an implicit form open.
	if card.State == domain.CardStateInitial {
		return nil
	}
	if !card.State.CanTransition(domain.CardStateReplied) {
		return fmt.Errorf("%w: cannot submit reply from state %s", domain.ErrConflict, card.State)
	}

	return nil
}

// RecordReplied persists the replied state after a successful local reply
// commit. This is the per-card linearization point: concurrent submitters are
// serialized by the repository upsert, last write wins.
func (m *Machine) RecordReplied(ctx context.Context, reviewID string, channelMessageID string, text string) (*domain.CardInteraction, error) {
	card := &domain.CardInteraction{
		ReviewID:         reviewID,
		ChannelMessageID: channelMessageID,
		State:            domain.CardStateReplied,
		PendingReplyText: &text,
		ReplyStatus:      domain.ReplyStatusPending,
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	if err := m.cards.Upsert(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to persist replied card state: %w", err)
	}

	m.cachePut(card)
	return card, nil
}

// RecordResolution updates a card with the outcome of the asynchronous
// external submission.
func (m *Machine) RecordResolution(ctx context.Context, reviewID string, channelMessageID string, status domain.ReplyStatus, submissionErr *string) error {
	card, err := m.Current(ctx, reviewID, channelMessageID)
	if err != nil {
		return err
	}

	card.ReplyStatus = status
	card.LastError = submissionErr

	if err := m.cards.Upsert(ctx, card); err != nil {
		return fmt.Errorf("failed to persist card resolution: %w", err)
	}

	m.cachePut(card)
	return nil
}

func (m *Machine) cachePut(card *domain.CardInteraction) {
	copied := *card
	m.cache.Set(cacheKey(card.ReviewID, card.ChannelMessageID), &copied, gocache.DefaultExpiration)
}

func cacheKey(reviewID string, channelMessageID string) string {
	return reviewID + "|" + channelMessageID
}
