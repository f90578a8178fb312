package coze

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

func newTestClient(t *testing.T, serverURL string, drainGrace time.Duration) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    serverURL,
		BotID:      "bot-1",
		UserID:     "user-1",
		VoiceID:    "voice-1",
		Auth:       StaticToken("test-token"),
		DrainGrace: drainGrace,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return client
}

func writeEvent(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func collectEvents(events *[]entities.StreamEvent) repositories.EventHandler {
	return func(event entities.StreamEvent) error {
		*events = append(*events, event)
		return nil
	}
}

func TestStreamHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		writeEvent(w, entities.EventChatCreated, `{"id":"chat-1","conversation_id":"conv-1","status":"created"}`)
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"Hi","conversation_id":"conv-1"}`)
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":" there","conversation_id":"conv-1"}`)
		writeEvent(w, entities.EventChatCompleted, `{"id":"chat-1","conversation_id":"conv-1"}`)
		writeEvent(w, "done", `"[DONE]"`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)

	var events []entities.StreamEvent
	result := client.Stream(context.Background(), repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, collectEvents(&events))

	if result.Outcome != entities.OutcomeCompleted {
		t.Fatalf("expected completed, got %v (%s)", result.Outcome, result.Reason)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("expected conversation id conv-1, got %q", result.ConversationID)
	}

	var text strings.Builder
	for _, ev := range events {
		if delta, ok := ev.(entities.MessageDelta); ok {
			text.WriteString(delta.Content)
		}
	}
	if text.String() != "Hi there" {
		t.Errorf("expected concatenated deltas %q, got %q", "Hi there", text.String())
	}
	if _, ok := events[len(events)-1].(entities.ChatCompleted); !ok {
		t.Errorf("expected final event to be chat completion, got %T", events[len(events)-1])
	}
}

func TestStreamServerFailureEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, entities.EventChatCreated, `{"id":"chat-1","conversation_id":"conv-1"}`)
		writeEvent(w, entities.EventChatFailed, `{"id":"chat-1","last_error":{"code":4027,"msg":"The request was rejected"}}`)
		// Nothing after a failure should be dispatched.
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"ghost"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)

	var events []entities.StreamEvent
	result := client.Stream(context.Background(), repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, collectEvents(&events))

	if result.Outcome != entities.OutcomeFailed {
		t.Fatalf("expected failed, got %v", result.Outcome)
	}
	if result.Reason != "The request was rejected" {
		t.Errorf("unexpected failure reason %q", result.Reason)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("expected conversation id to survive failure, got %q", result.ConversationID)
	}
	for _, ev := range events {
		if delta, ok := ev.(entities.MessageDelta); ok {
			t.Errorf("unexpected delta after failure: %+v", delta)
		}
	}
}

func TestStreamNonOKStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{
			name:   "json error body",
			status: http.StatusTooManyRequests,
			body:   `{"code":4013,"msg":"rate limited"}`,
			reason: "rate limited",
		},
		{
			name:   "opaque body",
			status: http.StatusBadGateway,
			body:   "<html>bad gateway</html>",
			reason: "502 Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, 50*time.Millisecond)
			result := client.Stream(context.Background(), repositories.ChatRequest{
				Message: entities.NewUserMessage("u1", "hello", nil),
			}, func(entities.StreamEvent) error { return nil })

			if result.Outcome != entities.OutcomeFailed {
				t.Fatalf("expected failed, got %v", result.Outcome)
			}
			if result.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, result.Reason)
			}
		})
	}
}

func TestStreamDoneSentinelHaltsParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"kept","conversation_id":"conv-1"}`)
		writeEvent(w, "done", `"[DONE]"`)
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"dropped"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)

	var events []entities.StreamEvent
	result := client.Stream(context.Background(), repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, collectEvents(&events))

	if result.Outcome != entities.OutcomeCompleted {
		t.Fatalf("expected completed, got %v", result.Outcome)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event before the sentinel, got %d", len(events))
	}
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"partial"}`)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	result := client.Stream(ctx, repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, func(event entities.StreamEvent) error {
		// Abort as soon as the first fragment lands.
		cancel()
		return nil
	})

	if result.Outcome != entities.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %v (%s)", result.Outcome, result.Reason)
	}
	if result.Reason != "" {
		t.Errorf("cancellation must not carry an error reason, got %q", result.Reason)
	}
}

func TestStreamAbortStopsBufferedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// All three blocks may land in the client's read buffer together.
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"first"}`)
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"second"}`)
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"third"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var deltas int
	result := client.Stream(ctx, repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, func(event entities.StreamEvent) error {
		if _, ok := event.(entities.MessageDelta); ok {
			deltas++
		}
		cancel()
		return nil
	})

	if result.Outcome != entities.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %v (%s)", result.Outcome, result.Reason)
	}
	if deltas != 1 {
		t.Errorf("events buffered behind an abort must not be dispatched, got %d deltas", deltas)
	}
}

func TestStreamDrainDeliversTrailingAudio(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, entities.EventChatCompleted, `{"id":"chat-1","conversation_id":"conv-1"}`)
		writeEvent(w, entities.EventAudioDelta, `{"content":"AAAA","conversation_id":"conv-1"}`)
		// Text events arriving mid-drain belong to nothing and are dropped.
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"late"}`)
		// Keep the connection open past the grace window.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 100*time.Millisecond)

	var events []entities.StreamEvent
	start := time.Now()
	result := client.Stream(context.Background(), repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, collectEvents(&events))

	if result.Outcome != entities.OutcomeCompleted {
		t.Fatalf("expected completed after drain, got %v (%s)", result.Outcome, result.Reason)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("stream closed before the grace window elapsed: %s", elapsed)
	}

	var sawAudio bool
	for _, ev := range events {
		switch ev.(type) {
		case entities.AudioDelta:
			sawAudio = true
		case entities.MessageDelta:
			t.Errorf("text delta leaked through the drain window")
		}
	}
	if !sawAudio {
		t.Error("expected the trailing audio delta to be dispatched")
	}
}

func TestStreamHandlerErrorFailsTurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, entities.EventMessageDelta, `{"id":"m1","content":"x"}`)
		writeEvent(w, "done", `"[DONE]"`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)
	result := client.Stream(context.Background(), repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	}, func(entities.StreamEvent) error {
		return fmt.Errorf("handler rejected event")
	})

	if result.Outcome != entities.OutcomeFailed {
		t.Fatalf("expected failed, got %v", result.Outcome)
	}
	if result.Reason != "handler rejected event" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}

func TestStreamSendsConversationContinuation(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("conversation_id")
		writeEvent(w, "done", `"[DONE]"`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 50*time.Millisecond)
	client.Stream(context.Background(), repositories.ChatRequest{
		ConversationID: "conv-42",
		Message:        entities.NewUserMessage("u1", "hello", nil),
	}, func(entities.StreamEvent) error { return nil })

	if gotQuery != "conv-42" {
		t.Errorf("expected conversation_id query conv-42, got %q", gotQuery)
	}
}

func TestBuildChatPayload(t *testing.T) {
	client := newTestClient(t, "http://example.invalid", 0)

	raw, err := client.buildChatPayload(repositories.ChatRequest{
		Message: entities.NewUserMessage("u1", "hello", nil),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload["bot_id"] != "bot-1" || payload["stream"] != true || payload["auto_save_history"] != true {
		t.Errorf("unexpected payload fields: %v", payload)
	}
	outputAudio, ok := payload["output_audio"].(map[string]any)
	if !ok {
		t.Fatal("expected output_audio with a configured voice")
	}
	if outputAudio["voice_id"] != "voice-1" || outputAudio["format"] != "pcm" {
		t.Errorf("unexpected output_audio: %v", outputAudio)
	}
}

func TestEncodeOutgoingMessageWithAttachments(t *testing.T) {
	msg := entities.NewUserMessage("u1", "look at this", []entities.Attachment{
		{ID: "file-1", Kind: entities.AttachmentImage, State: entities.UploadDone},
		{ID: "file-2", Kind: entities.AttachmentAudio, State: entities.UploadDone},
	})

	out, err := encodeOutgoingMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ContentType != "object_string" {
		t.Fatalf("expected object_string content type, got %q", out.ContentType)
	}

	var items []objectStringItem
	if err := json.Unmarshal([]byte(out.Content), &items); err != nil {
		t.Fatalf("content is not valid JSON: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected text plus 2 file items, got %d", len(items))
	}
	if items[0].Type != "text" || items[0].Text != "look at this" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[1].Type != "image" || items[1].FileID != "file-1" {
		t.Errorf("unexpected second item: %+v", items[1])
	}
	if items[2].Type != "audio" || items[2].FileID != "file-2" {
		t.Errorf("unexpected third item: %+v", items[2])
	}
}

func TestEncodeOutgoingMessageRejectsUnfinishedUpload(t *testing.T) {
	msg := entities.NewUserMessage("u1", "look", []entities.Attachment{
		{LocalUID: "local-1", Kind: entities.AttachmentImage, State: entities.UploadPending},
	})

	if _, err := encodeOutgoingMessage(msg); err == nil {
		t.Fatal("expected error for attachment without a file id")
	}
}
