package gateway

import (
	"testing"

	"github.com/satriahrh/anamnesa/domain/entities"
)

func TestParseInboundChat(t *testing.T) {
	parsed, err := ParseInbound([]byte(`{"type":"chat","text":"hello","file_ids":["f1"],"voice_echo":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chat, ok := parsed.(*ChatMessage)
	if !ok {
		t.Fatalf("expected ChatMessage, got %T", parsed)
	}
	if chat.Text != "hello" || len(chat.FileIDs) != 1 || !chat.VoiceEcho {
		t.Errorf("unexpected chat message %+v", chat)
	}
}

func TestParseInboundChatNeedsContent(t *testing.T) {
	if _, err := ParseInbound([]byte(`{"type":"chat"}`)); err == nil {
		t.Fatal("expected error for empty chat message")
	}
}

func TestParseInboundControlTypes(t *testing.T) {
	for _, typ := range []MessageType{MessageTypeStop, MessageTypeStopAudio, MessageTypeReset, MessageTypePing} {
		parsed, err := ParseInbound([]byte(`{"type":"` + string(typ) + `"}`))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", typ, err)
		}
		base, ok := parsed.(*BaseMessage)
		if !ok || base.Type != typ {
			t.Errorf("expected base message of type %s, got %+v", typ, parsed)
		}
	}
}

func TestParseInboundRejectsUnknownType(t *testing.T) {
	if _, err := ParseInbound([]byte(`{"type":"teleport"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParseInboundRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseInbound([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestNewStateMessage(t *testing.T) {
	msg := NewStateMessage(true, "boom", false, "conv-1")
	if msg.Type != MessageTypeState {
		t.Errorf("unexpected type %s", msg.Type)
	}
	if !msg.Loading || msg.Error != "boom" || msg.AudioPlaying || msg.ConversationID != "conv-1" {
		t.Errorf("unexpected state message %+v", msg)
	}
}

func TestNewTranscriptMessage(t *testing.T) {
	msg := NewTranscriptMessage([]entities.Message{entities.NewUserMessage("u1", "hi", nil)})
	if msg.Type != MessageTypeTranscript {
		t.Errorf("unexpected type %s", msg.Type)
	}
	if len(msg.Messages) != 1 || msg.Messages[0].Content != "hi" {
		t.Errorf("unexpected transcript %+v", msg.Messages)
	}
}
