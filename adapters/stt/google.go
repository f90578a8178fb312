package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText on Google Cloud. It transcribes
// complete push-to-talk utterances, so the synchronous Recognize call is
// enough; no streaming session management.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates the recognizer. Credentials come from the
// standard GOOGLE_APPLICATION_CREDENTIALS environment.
func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

// TranscribeAudio converts one recorded utterance to text.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return "", err
	}

	language := config.Language
	if language == "" {
		language = "en-US"
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(config.SampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognition request failed: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	transcript := strings.TrimSpace(strings.Join(parts, " "))
	if transcript == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	g.logger.Debug("Transcription completed",
		zap.Int("audioBytes", len(audioData)),
		zap.Int("chars", len(transcript)))
	return transcript, nil
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
