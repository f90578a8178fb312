package entities

import (
	"encoding/json"
	"fmt"
)

// Platform event names. These are wire constants of the hosted agent
// protocol and must not be renamed.
const (
	EventChatCreated      = "conversation.chat.created"
	EventChatInProgress   = "conversation.chat.in_progress"
	EventMessageDelta     = "conversation.message.delta"
	EventMessageCompleted = "conversation.message.completed"
	EventChatCompleted    = "conversation.chat.completed"
	EventChatFailed       = "conversation.chat.failed"
	EventAudioDelta       = "conversation.audio.delta"
)

// StreamEvent is one typed event parsed from the chat stream. Each variant
// carries only the fields its event name guarantees.
type StreamEvent interface {
	EventName() string
}

// ChatCreated announces a new chat turn and carries the conversation id that
// later requests must continue.
type ChatCreated struct {
	ChatID         string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

func (ChatCreated) EventName() string { return EventChatCreated }

// MessageDelta is an incremental text fragment for the assistant turn.
type MessageDelta struct {
	MessageID      string `json:"id"`
	Content        string `json:"content"`
	ChatID         string `json:"chat_id"`
	SectionID      string `json:"section_id"`
	ConversationID string `json:"conversation_id"`
}

func (MessageDelta) EventName() string { return EventMessageDelta }

// MessageCompleted marks one message as finished. Informational only.
type MessageCompleted struct {
	MessageID string `json:"id"`
	ChatID    string `json:"chat_id"`
}

func (MessageCompleted) EventName() string { return EventMessageCompleted }

// ChatCompleted marks the text portion of the turn as finished. Trailing
// audio deltas may still follow it on the same stream.
type ChatCompleted struct {
	ChatID         string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

func (ChatCompleted) EventName() string { return EventChatCompleted }

// ChatFailed reports a server-side failure for the turn.
type ChatFailed struct {
	ChatID    string `json:"id"`
	LastError struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error"`
}

func (ChatFailed) EventName() string { return EventChatFailed }

// FailureMessage returns the user-facing reason for the failure.
func (e ChatFailed) FailureMessage() string {
	if e.LastError.Msg != "" {
		return e.LastError.Msg
	}
	return "chat failed"
}

// AudioDelta carries one base64-encoded chunk of 16-bit little-endian PCM,
// mono, 24000 Hz.
type AudioDelta struct {
	Content        string `json:"content"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`
}

func (AudioDelta) EventName() string { return EventAudioDelta }

// eventDecoders maps event names to payload decoders. Names absent from the
// table are unknown and skipped for forward compatibility.
var eventDecoders = map[string]func([]byte) (StreamEvent, error){
	EventChatCreated:      decodeInto[ChatCreated],
	EventMessageDelta:     decodeInto[MessageDelta],
	EventMessageCompleted: decodeInto[MessageCompleted],
	EventChatCompleted:    decodeInto[ChatCompleted],
	EventChatFailed:       decodeInto[ChatFailed],
	EventAudioDelta:       decodeInto[AudioDelta],
}

func decodeInto[T StreamEvent](data []byte) (StreamEvent, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeEvent parses the data payload of one stream block into its typed
// event. It returns (nil, nil) for event names the client does not know.
func DecodeEvent(name string, data []byte) (StreamEvent, error) {
	decode, ok := eventDecoders[name]
	if !ok {
		return nil, nil
	}
	ev, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", name, err)
	}
	return ev, nil
}
