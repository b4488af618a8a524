package card

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/review-relay/internal/domain"
)

type fakeCardRepo struct {
	getFn           func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error)
	getByReviewIDFn func(ctx context.Context, reviewID string) ([]domain.CardInteraction, error)
	upsertFn        func(ctx context.Context, card *domain.CardInteraction) error
}

func (f *fakeCardRepo) Get(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
	if f.getFn != nil {
		return f.getFn(ctx, reviewID, channelMessageID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCardRepo) GetByReviewID(ctx context.Context, reviewID string) ([]domain.CardInteraction, error) {
	if f.getByReviewIDFn != nil {
		return f.getByReviewIDFn(ctx, reviewID)
	}
	return nil, nil
}

func (f *fakeCardRepo) Upsert(ctx context.Context, card *domain.CardInteraction) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, card)
	}
	return nil
}

func TestMachineCreateInitial(t *testing.T) {
	t.Parallel()

	var persisted *domain.CardInteraction
	repo := &fakeCardRepo{
		upsertFn: func(ctx context.Context, card *domain.CardInteraction) error {
			persisted = card
			return nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	card, err := m.CreateInitial(context.Background(), "r1", "msg-1")
	if err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}

	if card.State != domain.CardStateInitial {
		t.Fatalf("state = %s, want INITIAL", card.State)
	}
	if persisted == nil || persisted.ReviewID != "r1" {
		t.Fatal("initial state should be persisted")
	}

	// The fresh state must now be servable from cache without a repo read.
	repo.getFn = func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
		t.Fatal("Current() should hit the cache, not the repository")
		return nil, nil
	}
	got, err := m.Current(context.Background(), "r1", "msg-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got.State != domain.CardStateInitial {
		t.Fatalf("cached state = %s, want INITIAL", got.State)
	}
}

func TestMachineOpenReplyIsCacheOnly(t *testing.T) {
	t.Parallel()

	upserts := 0
	repo := &fakeCardRepo{
		upsertFn: func(ctx context.Context, card *domain.CardInteraction) error {
			upserts++
			return nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	if _, err := m.CreateInitial(context.Background(), "r1", "msg-1"); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	upsertsAfterCreate := upserts

	card, err := m.OpenReply(context.Background(), "r1", "msg-1")
	if err != nil {
		t.Fatalf("OpenReply() error = %v", err)
	}
	if card.State != domain.CardStateReplying {
		t.Fatalf("state = %s, want REPLYING", card.State)
	}
	if upserts != upsertsAfterCreate {
		t.Fatal("OpenReply() must not write to the repository")
	}

	// Opening an already-open form is idempotent.
	if _, err := m.OpenReply(context.Background(), "r1", "msg-1"); err != nil {
		t.Fatalf("repeat OpenReply() error = %v", err)
	}
}

func TestMachineOpenReplyFromRepliedConflicts(t *testing.T) {
	t.Parallel()

	text := "thanks"
	repo := &fakeCardRepo{
		getFn: func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
			return &domain.CardInteraction{
				ReviewID:         reviewID,
				ChannelMessageID: channelMessageID,
				State:            domain.CardStateReplied,
				PendingReplyText: &text,
				ReplyStatus:      domain.ReplyStatusSubmitted,
			}, nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	if _, err := m.OpenReply(context.Background(), "r1", "msg-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("OpenReply() error = %v, want ErrConflict", err)
	}

	// The replied card re-opens through BeginEdit instead, pre-filled.
	card, err := m.BeginEdit(context.Background(), "r1", "msg-1")
	if err != nil {
		t.Fatalf("BeginEdit() error = %v", err)
	}
	if card.State != domain.CardStateEditingReply {
		t.Fatalf("state = %s, want EDITING_REPLY", card.State)
	}
	if card.PendingReplyText == nil || *card.PendingReplyText != "thanks" {
		t.Fatalf("pending text = %v, want pre-filled %q", card.PendingReplyText, "thanks")
	}
}

func TestMachineCheckSubmitValidation(t *testing.T) {
	t.Parallel()

	repo := &fakeCardRepo{
		getFn: func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
			t.Fatal("validation failures must not reach the repository")
			return nil, nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	if err := m.CheckSubmit(context.Background(), "r1", "msg-1", "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("CheckSubmit(whitespace) error = %v, want ErrValidation", err)
	}
	if err := m.CheckSubmit(context.Background(), "r1", "msg-1", strings.Repeat("x", domain.MaxReplyLength+1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("CheckSubmit(oversized) error = %v, want ErrValidation", err)
	}
}

func TestMachineCheckSubmitStates(t *testing.T) {
	t.Parallel()

	state := domain.CardStateInitial
	repo := &fakeCardRepo{
		getFn: func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
			return &domain.CardInteraction{
				ReviewID:         reviewID,
				ChannelMessageID: channelMessageID,
				State:            state,
				ReplyStatus:      domain.ReplyStatusNone,
			}, nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	// Submitting straight from the initial card is an implicit form open.
	if err := m.CheckSubmit(context.Background(), "r1", "msg-1", "thanks"); err != nil {
		t.Fatalf("CheckSubmit(initial) error = %v", err)
	}

	state = domain.CardStateReplied
	if err := m.CheckSubmit(context.Background(), "r2", "msg-2", "thanks"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("CheckSubmit(replied) error = %v, want ErrConflict", err)
	}

	state = domain.CardStateEditingReply
	if err := m.CheckSubmit(context.Background(), "r3", "msg-3", "thanks"); err != nil {
		t.Fatalf("CheckSubmit(editing) error = %v", err)
	}
}

func TestMachineRecordRepliedAndResolution(t *testing.T) {
	t.Parallel()

	var persisted []*domain.CardInteraction
	repo := &fakeCardRepo{
		upsertFn: func(ctx context.Context, card *domain.CardInteraction) error {
			copied := *card
			persisted = append(persisted, &copied)
			return nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	card, err := m.RecordReplied(context.Background(), "r1", "msg-1", "thank you")
	if err != nil {
		t.Fatalf("RecordReplied() error = %v", err)
	}
	if card.State != domain.CardStateReplied {
		t.Fatalf("state = %s, want REPLIED", card.State)
	}
	if card.ReplyStatus != domain.ReplyStatusPending {
		t.Fatalf("reply status = %s, want PENDING", card.ReplyStatus)
	}

	submissionErr := "source unavailable"
	if err := m.RecordResolution(context.Background(), "r1", "msg-1", domain.ReplyStatusFailed, &submissionErr); err != nil {
		t.Fatalf("RecordResolution() error = %v", err)
	}

	if len(persisted) != 2 {
		t.Fatalf("persisted writes = %d, want 2", len(persisted))
	}
	final := persisted[1]
	if final.ReplyStatus != domain.ReplyStatusFailed {
		t.Fatalf("final reply status = %s, want FAILED", final.ReplyStatus)
	}
	if final.LastError == nil || *final.LastError != submissionErr {
		t.Fatalf("final last error = %v, want %q", final.LastError, submissionErr)
	}
	if final.PendingReplyText == nil || *final.PendingReplyText != "thank you" {
		t.Fatal("resolution must keep the pending reply text")
	}
}

func TestMachineCurrentFallsBackToRepository(t *testing.T) {
	t.Parallel()

	repo := &fakeCardRepo{
		getFn: func(ctx context.Context, reviewID string, channelMessageID string) (*domain.CardInteraction, error) {
			return &domain.CardInteraction{
				ReviewID:         reviewID,
				ChannelMessageID: channelMessageID,
				State:            domain.CardStateReplying,
				ReplyStatus:      domain.ReplyStatusNone,
			}, nil
		},
	}

	m, err := NewMachine(repo, nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	card, err := m.Current(context.Background(), "r1", "msg-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if card.State != domain.CardStateReplying {
		t.Fatalf("state = %s, want REPLYING", card.State)
	}
}
