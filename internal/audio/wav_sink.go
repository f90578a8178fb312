package audio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

// WAVSink captures everything scheduled during a session and writes it out
// as a single WAV file on Close. Useful when no speaker is available and
// for inspecting what the agent actually said.
type WAVSink struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	samples []int
	closed  bool
}

// NewWAVSink creates a sink that writes the captured session audio to path.
func NewWAVSink(path string, logger *zap.Logger) *WAVSink {
	return &WAVSink{path: path, logger: logger}
}

func (s *WAVSink) Start() error {
	return nil
}

// Flush is a no-op; the capture is encoded once on Close.
func (s *WAVSink) Flush() error {
	return nil
}

func (s *WAVSink) WritePCM(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wav sink already closed")
	}
	for _, f := range samples {
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		s.samples = append(s.samples, int(f*32767.0))
	}
	return nil
}

// Close encodes the captured samples to the WAV file. Closing a sink that
// never received audio writes nothing.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if len(s.samples) == 0 {
		return nil
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	defer f.Close()

	encoder := wav.NewEncoder(f, SampleRate, BitDepth, NumChannels, 1)
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: NumChannels,
			SampleRate:  SampleRate,
		},
		Data:           s.samples,
		SourceBitDepth: BitDepth,
	}
	if err := encoder.Write(buffer); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}

	s.logger.Info("Session audio written",
		zap.String("path", s.path),
		zap.Int("samples", len(s.samples)))
	return nil
}
