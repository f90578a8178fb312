package audio

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/repositories"
)

// Ensure Player implements the AudioPlayer interface
var _ repositories.AudioPlayer = (*Player)(nil)

// Sink receives the PCM of each chunk at the moment it is scheduled to
// start. Implementations play, capture, or discard the audio.
type Sink interface {
	// Start is called when a burst of chunks begins, before the burst's
	// first write. A failure is logged and scheduling continues best
	// effort.
	Start() error
	// WritePCM receives the normalized samples of one chunk.
	WritePCM(samples []float32) error
	// Flush is called when the burst drains or is force-stopped. The next
	// burst calls Start again.
	Flush() error
	// Close releases the output device.
	Close() error
}

// source is one scheduled chunk, tracked from scheduling until its end
// callback fires or it is forcibly stopped.
type source struct {
	id         uint64
	startTimer *clock.Timer
	endTimer   *clock.Timer
}

// Player schedules incoming PCM chunks back-to-back on a monotonic playback
// cursor so audio is gapless even though chunks arrive as discrete network
// messages. An explicit Stop latches the player: further chunks are dropped
// until the next session resets it.
type Player struct {
	sink   Sink
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	active  map[uint64]*source
	cursor  time.Time // end of the last scheduled chunk; zero when drained
	playing bool
	stopped bool // sticky user-stop latch
}

// NewPlayer creates a player scheduling onto the given sink. Pass
// clock.New() outside of tests.
func NewPlayer(sink Sink, clk clock.Clock, logger *zap.Logger) *Player {
	return &Player{
		sink:   sink,
		clock:  clk,
		logger: logger,
		active: make(map[uint64]*source),
	}
}

// PlayChunk decodes one base64 PCM chunk and schedules it to begin at the
// later of "now" and the end of the previously scheduled chunk. Malformed
// chunks are skipped so a single bad network message never kills the
// stream. No-op while the stop latch is set.
func (p *Player) PlayChunk(base64Content string) {
	samples, err := DecodePCM16(base64Content)
	if err != nil {
		p.logger.Warn("Skipping undecodable audio chunk", zap.Error(err))
		return
	}
	if len(samples) == 0 {
		return
	}

	duration := time.Duration(len(samples)) * time.Second / SampleRate

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	if !p.playing {
		// A new burst begins; the sink opens its output for it.
		if err := p.sink.Start(); err != nil {
			p.logger.Warn("Audio sink failed to start", zap.Error(err))
		}
	}

	now := p.clock.Now()
	start := now
	if p.cursor.After(now) {
		start = p.cursor
	}
	p.cursor = start.Add(duration)

	p.nextID++
	src := &source{id: p.nextID}
	p.active[src.id] = src
	p.playing = true

	src.startTimer = p.clock.AfterFunc(start.Sub(now), func() {
		p.playSource(src, samples, duration)
	})
}

// playSource fires at a chunk's scheduled start: it hands the samples to
// the sink and arms the end-of-chunk callback.
func (p *Player) playSource(src *source, samples []float32, duration time.Duration) {
	p.mu.Lock()
	if _, ok := p.active[src.id]; !ok {
		// Forcibly stopped between scheduling and start.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.sink.WritePCM(samples); err != nil {
		p.logger.Warn("Audio sink write failed", zap.Error(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[src.id]; !ok {
		return
	}
	src.endTimer = p.clock.AfterFunc(duration, func() {
		p.endSource(src.id)
	})
}

// endSource fires when a chunk finishes naturally. Draining the active set
// ends the burst and rewinds the cursor for the next utterance.
func (p *Player) endSource(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.active[id]; !ok {
		return
	}
	delete(p.active, id)
	if len(p.active) == 0 {
		p.playing = false
		p.cursor = time.Time{}
		p.flushSinkLocked()
	}
}

// Stop sets the sticky stop latch, force-stops every tracked chunk, and
// clears the active set. Chunks that already finished are ignored. Further
// PlayChunk calls are dropped until Reset.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	wasPlaying := p.playing
	for id, src := range p.active {
		if src.startTimer != nil {
			src.startTimer.Stop()
		}
		if src.endTimer != nil {
			src.endTimer.Stop()
		}
		delete(p.active, id)
	}
	p.playing = false
	p.cursor = time.Time{}
	if wasPlaying {
		p.flushSinkLocked()
	}
}

// Reset clears the stop latch so the next session can play again.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = false
}

// IsPlaying reports whether any scheduled chunk has not finished yet.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops playback and releases the sink. The player is unusable
// afterwards.
func (p *Player) Close() error {
	p.Stop()
	return p.sink.Close()
}

func (p *Player) flushSinkLocked() {
	if err := p.sink.Flush(); err != nil {
		p.logger.Warn("Audio sink flush failed", zap.Error(err))
	}
}
