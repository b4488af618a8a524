package channel

import "context"

// Channel is the outbound chat delivery port: it sends interactive cards to a
// destination and mutates already-sent messages in place.
type Channel interface {
	Send(ctx context.Context, destination string, card Card) (*SendResult, error)
	Mutate(ctx context.Context, messageID string, card Card) error
}

// SendResult stores channel call metadata for the interaction state machine.
type SendResult struct {
	MessageID string
}

// Card is the structured interactive payload delivered to the chat channel.
// Visual layout (colors, icons, templates) is owned by the chat platform;
// only state and text travel here.
type Card struct {
	ReviewID    string `json:"reviewId"`
	Kind        string `json:"kind,omitempty"`
	Rating      int    `json:"rating"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`
	Author      string `json:"author,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
	Territory   string `json:"territory,omitempty"`
	State       string `json:"state"`
	ReplyText   string `json:"replyText,omitempty"`
	ReplyStatus string `json:"replyStatus,omitempty"`
	ErrorNote   string `json:"errorNote,omitempty"`
}
