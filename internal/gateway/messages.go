package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/anamnesa/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	// Inbound, client to gateway.
	MessageTypeChat      MessageType = "chat"
	MessageTypeStop      MessageType = "stop"
	MessageTypeStopAudio MessageType = "stop_audio"
	MessageTypeReset     MessageType = "reset"
	MessageTypePing      MessageType = "ping"

	// Outbound, gateway to client. Reply audio travels separately as binary
	// frames of raw 16-bit PCM between speaking_start and speaking_end.
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeState         MessageType = "state"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// ChatMessage asks the gateway to send one user turn to the agent.
type ChatMessage struct {
	BaseMessage
	Text string `json:"text"`
	// FileIDs are attachments already uploaded through the REST endpoint.
	FileIDs []string `json:"file_ids,omitempty"`
	// VoiceEcho attaches a synthesized spoken copy of Text to the turn.
	VoiceEcho bool `json:"voice_echo,omitempty"`
}

// TranscriptMessage carries a full snapshot of the conversation so far.
// Snapshots are cheap at chat scale and spare the client delta bookkeeping.
type TranscriptMessage struct {
	BaseMessage
	Messages []entities.Message `json:"messages"`
}

// StateMessage mirrors the session's observable state.
type StateMessage struct {
	BaseMessage
	Loading        bool   `json:"loading"`
	Error          string `json:"error,omitempty"`
	AudioPlaying   bool   `json:"audio_playing"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ParseInbound parses one client message, returning a typed struct.
func ParseInbound(raw []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid chat message: %w", err)
		}
		if msg.Text == "" && len(msg.FileIDs) == 0 {
			return nil, fmt.Errorf("chat message needs text or file_ids")
		}
		return &msg, nil

	case MessageTypeStop, MessageTypeStopAudio, MessageTypeReset, MessageTypePing:
		return &base, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

// NewTranscriptMessage wraps a transcript snapshot for sending.
func NewTranscriptMessage(messages []entities.Message) *TranscriptMessage {
	return &TranscriptMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTranscript, Timestamp: now()},
		Messages:    messages,
	}
}

// NewStateMessage wraps session state for sending.
func NewStateMessage(loading bool, errMsg string, audioPlaying bool, conversationID string) *StateMessage {
	return &StateMessage{
		BaseMessage:    BaseMessage{Type: MessageTypeState, Timestamp: now()},
		Loading:        loading,
		Error:          errMsg,
		AudioPlaying:   audioPlaying,
		ConversationID: conversationID,
	}
}

// NewErrorMessage creates a standardized error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: now()},
		Code:        code,
		Message:     message,
	}
}

// NewPongMessage creates a pong response message
func NewPongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{Type: MessageTypePong, Timestamp: now()},
		Data:        data,
	}
}
