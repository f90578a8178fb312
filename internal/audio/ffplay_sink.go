package audio

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// FFPlaySink pipes scheduled PCM into an ffplay subprocess for actual
// speaker output. ffplay reads s16le from stdin, so samples are converted
// back from floats on write.
type FFPlaySink struct {
	path   string
	volume int
	logger *zap.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFPlaySink creates a speaker sink. path defaults to "ffplay"; volume
// is 0-100 and defaults to 80.
func NewFFPlaySink(path string, volume int, logger *zap.Logger) *FFPlaySink {
	if path == "" {
		path = "ffplay"
	}
	if volume <= 0 || volume > 100 {
		volume = 80
	}
	return &FFPlaySink{path: path, volume: volume, logger: logger}
}

func (s *FFPlaySink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	// ffplay does not accept ffmpeg-style -ac; channel count goes through
	// -ch_layout.
	cmd := exec.Command(s.path,
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-volume", strconv.Itoa(s.volume),
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", strconv.Itoa(SampleRate),
		"-i", "-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("starting ffplay: %w", err)
	}

	s.logger.Debug("ffplay started", zap.Int("pid", cmd.Process.Pid))
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

func (s *FFPlaySink) WritePCM(samples []float32) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("ffplay is not running")
	}
	_, err := stdin.Write(EncodePCM16(samples))
	return err
}

// Flush is a no-op: the speaker process stays open between bursts so the
// next one starts without subprocess latency.
func (s *FFPlaySink) Flush() error {
	return nil
}

func (s *FFPlaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		s.cmd = nil
	}
	return nil
}
