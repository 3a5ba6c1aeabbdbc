package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Frame events exchanged with the assistant backend.
const (
	FrameUserMessage    = "user_message"
	FrameBatchQuestions = "batch_questions"
	FrameBotReply       = "bot_reply"
	FrameError          = "error"
	FrameBatchAnswers   = "batch_answers"
)

// DefaultOfferName is sent with a batch questionnaire when none is given.
const DefaultOfferName = "Offre_01"

// Texts of synthesized error messages.
const (
	ProtocolErrorPrefix = "Erreur: "
	DecodeFailureText   = "Erreur de traitement du message"
)

// Frame is one JSON envelope on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type userMessageData struct {
	Message string `json:"message"`
}

type batchQuestionsData struct {
	Payload   json.RawMessage `json:"payload"`
	OfferName string          `json:"offer_name"`
}

type botReplyData struct {
	Message string            `json:"message"`
	Sources []json.RawMessage `json:"sources"`
}

type errorData struct {
	Message string `json:"message"`
}

var errMissingEvent = errors.New("missing event")

// encodeFrame builds an outbound envelope.
func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}

// decodeFrame parses an inbound envelope. The event must be a non-empty
// string; data is left raw for the event-specific decoder.
func decodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, &DecodeError{Err: err}
	}
	if f.Event == "" {
		return Frame{}, &DecodeError{Err: errMissingEvent}
	}
	return f, nil
}

// decodeData unmarshals frame data into v. Absent or null data is an error
// for events that carry an object.
func decodeData(f Frame, v any) error {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return &DecodeError{Err: fmt.Errorf("%s: missing data", f.Event)}
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return &DecodeError{Err: fmt.Errorf("%s: %w", f.Event, err)}
	}
	return nil
}
