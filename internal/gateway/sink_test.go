package gateway

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func newSinkTestClient(t *testing.T) *Client {
	t.Helper()
	return &Client{
		send:   make(chan WriteData, 8),
		done:   make(chan struct{}),
		logger: zaptest.NewLogger(t),
	}
}

func nextFrame(t *testing.T, client *Client) WriteData {
	t.Helper()
	select {
	case frame := <-client.send:
		return frame
	default:
		t.Fatal("expected a queued frame")
		return WriteData{}
	}
}

func TestStreamSinkBracketsBurst(t *testing.T) {
	client := newSinkTestClient(t)
	sink := newStreamSink(client)

	if err := sink.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.WritePCM([]float32{0, 0.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := nextFrame(t, client)
	var base BaseMessage
	if err := json.Unmarshal(frame.Payload, &base); err != nil {
		t.Fatalf("decoding first frame: %v", err)
	}
	if base.Type != MessageTypeSpeakingStart {
		t.Errorf("expected speaking_start first, got %q", base.Type)
	}

	frame = nextFrame(t, client)
	if frame.Type != websocket.BinaryMessage {
		t.Fatalf("expected a binary PCM frame, got type %d", frame.Type)
	}
	if len(frame.Payload) != 4 {
		t.Errorf("expected 2 samples as 4 bytes, got %d", len(frame.Payload))
	}

	frame = nextFrame(t, client)
	if err := json.Unmarshal(frame.Payload, &base); err != nil {
		t.Fatalf("decoding last frame: %v", err)
	}
	if base.Type != MessageTypeSpeakingEnd {
		t.Errorf("expected speaking_end last, got %q", base.Type)
	}
}
