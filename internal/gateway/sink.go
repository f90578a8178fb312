package gateway

import (
	"github.com/gorilla/websocket"

	"github.com/satriahrh/anamnesa/internal/audio"
)

// streamSink forwards scheduled reply audio to the websocket peer as binary
// frames of raw 16-bit little-endian PCM. The player brackets each burst
// with Start and Flush, which become speaking_start and speaking_end
// markers so the client knows when to open and close its output device.
type streamSink struct {
	client *Client
}

var _ audio.Sink = (*streamSink)(nil)

func newStreamSink(client *Client) *streamSink {
	return &streamSink{client: client}
}

func (s *streamSink) Start() error {
	s.client.sendJSON(&BaseMessage{Type: MessageTypeSpeakingStart, Timestamp: now()})
	return nil
}

func (s *streamSink) WritePCM(samples []float32) error {
	s.client.trySend(WriteData{
		Type:    websocket.BinaryMessage,
		Payload: audio.EncodePCM16(samples),
	})
	return nil
}

func (s *streamSink) Flush() error {
	s.client.sendJSON(&BaseMessage{Type: MessageTypeSpeakingEnd, Timestamp: now()})
	return nil
}

// Close is a no-op; the websocket connection is owned by the client.
func (s *streamSink) Close() error {
	return nil
}
