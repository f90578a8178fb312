package repositories

import "context"

// SpeechSynthesizer converts text to a complete WAV clip. Used by the
// voice-echo preparation step that uploads a spoken copy of the user's text
// alongside the message.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Voice describes one synthesized voice offered by the platform.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Language string `json:"language_code"`
	Preset   bool   `json:"is_system_voice"`
}

// VoiceCatalog lists the voices available for audio output.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// AudioConfig describes captured audio handed to speech recognition.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToText abstracts speech recognition for push-to-talk input.
type SpeechToText interface {
	// TranscribeAudio converts a complete utterance to text.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}
