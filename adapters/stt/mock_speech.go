package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/repositories"
)

// MockSpeechToText is a placeholder recognizer for local runs without Google
// Cloud credentials.
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio returns a canned transcript keyed on audio size.
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	switch {
	case len(audioData) > 10000:
		return "Tell me something interesting about what you see.", nil
	case len(audioData) > 1000:
		return "Hello, can you hear me?", nil
	default:
		return "Hi", nil
	}
}
