// Package domain contains core domain types for the offer assistant.
package domain

import (
	"encoding/json"
	"time"
)

// MessageKind tags each variant of the conversation log.
type MessageKind string

const (
	// KindUser is a message typed by the user and echoed locally on send.
	KindUser MessageKind = "user"
	// KindBot is an assistant reply.
	KindBot MessageKind = "bot"
	// KindError is a protocol or decode error surfaced in the log.
	KindError MessageKind = "error"
	// KindBatch is a questionnaire answer payload.
	KindBatch MessageKind = "batch"
)

// Message is one entry of the append-only conversation log.
// The set of implementations is closed: UserMessage, BotMessage,
// ErrorMessage and BatchResult.
type Message interface {
	Kind() MessageKind
	MessageID() string
	SentAt() time.Time
	isMessage()
}

// Header carries the fields shared by every message variant.
type Header struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageID returns the message identifier.
func (h Header) MessageID() string { return h.ID }

// SentAt returns the creation time of the message.
func (h Header) SentAt() time.Time { return h.Timestamp }

func (Header) isMessage() {}

// Source is one retrieval source attached to a bot reply. The backend does
// not fix its shape, so it is kept verbatim.
type Source = json.RawMessage

// UserMessage is a message sent by the user.
type UserMessage struct {
	Header
	Text string `json:"text"`
}

// Kind implements Message.
func (UserMessage) Kind() MessageKind { return KindUser }

// MarshalJSON adds the kind tag.
func (m UserMessage) MarshalJSON() ([]byte, error) {
	type alias UserMessage
	return json.Marshal(struct {
		Kind MessageKind `json:"kind"`
		alias
	}{KindUser, alias(m)})
}

// BotMessage is an assistant reply.
type BotMessage struct {
	Header
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Kind implements Message.
func (BotMessage) Kind() MessageKind { return KindBot }

// MarshalJSON adds the kind tag.
func (m BotMessage) MarshalJSON() ([]byte, error) {
	type alias BotMessage
	if m.Sources == nil {
		m.Sources = []Source{}
	}
	return json.Marshal(struct {
		Kind MessageKind `json:"kind"`
		alias
	}{KindBot, alias(m)})
}

// ErrorMessage is an error surfaced to the user through the log.
type ErrorMessage struct {
	Header
	Text string `json:"text"`
}

// Kind implements Message.
func (ErrorMessage) Kind() MessageKind { return KindError }

// IsError always reports true.
func (ErrorMessage) IsError() bool { return true }

// MarshalJSON adds the kind tag and the isError marker.
func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type alias ErrorMessage
	return json.Marshal(struct {
		Kind    MessageKind `json:"kind"`
		IsError bool        `json:"isError"`
		alias
	}{KindError, true, alias(m)})
}

// BatchResult carries the answers to a batch questionnaire.
type BatchResult struct {
	Header
	Payload json.RawMessage `json:"payload"`
}

// Kind implements Message.
func (BatchResult) Kind() MessageKind { return KindBatch }

// MarshalJSON adds the kind tag.
func (m BatchResult) MarshalJSON() ([]byte, error) {
	type alias BatchResult
	if len(m.Payload) == 0 {
		m.Payload = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Kind MessageKind `json:"kind"`
		alias
	}{KindBatch, alias(m)})
}

// MessageText returns the human-readable text of a message, or "" for
// variants without one.
func MessageText(m Message) string {
	switch v := m.(type) {
	case UserMessage:
		return v.Text
	case BotMessage:
		return v.Text
	case ErrorMessage:
		return v.Text
	case BatchResult:
		return ""
	default:
		return ""
	}
}

// LatestBot returns the newest BotMessage in the log.
func LatestBot(log []Message) (BotMessage, bool) {
	for i := len(log) - 1; i >= 0; i-- {
		if bot, ok := log[i].(BotMessage); ok {
			return bot, true
		}
	}
	return BotMessage{}, false
}
