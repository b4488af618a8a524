package card

import (
	"github.com/kursadbilgin/review-relay/internal/channel"
	"github.com/kursadbilgin/review-relay/internal/domain"
)

// Render builds the structured card payload for a review in a given
// interaction state. Layout stays with the chat platform; this only decides
// which state and text fields travel.
func Render(review *domain.Review, state domain.CardState, replyText string, replyStatus domain.ReplyStatus, errorNote string) channel.Card {
	if review == nil {
		return channel.Card{State: state.String()}
	}

	card := channel.Card{
		ReviewID:    review.ID,
		Kind:        review.DeliveryKind.String(),
		Rating:      review.Rating,
		Author:      review.AuthorName,
		State:       state.String(),
		ReplyText:   replyText,
		ReplyStatus: replyStatus.String(),
		ErrorNote:   errorNote,
	}

	if review.Title != nil {
		card.Title = *review.Title
	}
	if review.Body != nil {
		card.Body = *review.Body
	}
	if review.AppVersion != nil {
		card.AppVersion = *review.AppVersion
	}
	if review.Territory != nil {
		card.Territory = *review.Territory
	}

	return card
}

// RenderInteraction renders a review together with its tracked card state.
func RenderInteraction(review *domain.Review, interaction *domain.CardInteraction) channel.Card {
	if interaction == nil {
		return Render(review, domain.CardStateInitial, "", domain.ReplyStatusNone, "")
	}

	replyText := ""
	if interaction.PendingReplyText != nil {
		replyText = *interaction.PendingReplyText
	}
	errorNote := ""
	if interaction.LastError != nil {
		errorNote = *interaction.LastError
	}

	return Render(review, interaction.State, replyText, interaction.ReplyStatus, errorNote)
}
