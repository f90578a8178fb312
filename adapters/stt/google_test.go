package stt_test

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/anamnesa/adapters/stt"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

var _ repositories.SpeechToText = &stt.GoogleSpeechToText{}

func TestMockTranscribeAudioEmpty(t *testing.T) {
	recognizer := stt.NewMockSpeechToText(zaptest.NewLogger(t))

	_, err := recognizer.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{})
	if err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestMockTranscribeAudio(t *testing.T) {
	recognizer := stt.NewMockSpeechToText(zaptest.NewLogger(t))

	transcript, err := recognizer.TranscribeAudio(context.Background(), make([]byte, 2048), repositories.AudioConfig{
		SampleRate: 16000,
		Encoding:   "LINEAR16",
		Language:   "en-US",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript == "" {
		t.Error("expected non-empty transcript")
	}
}
