package repositories

// AudioPlayer schedules incoming base64 PCM chunks for gapless playback.
// Implementations own the playback clock; callers only forward payloads.
type AudioPlayer interface {
	// PlayChunk decodes and schedules one chunk. Malformed chunks are
	// skipped, not returned as errors. No-op while the stop latch is set.
	PlayChunk(base64Content string)
	// Stop force-stops everything scheduled and latches further PlayChunk
	// calls into no-ops until Reset.
	Stop()
	// Reset clears the stop latch for a fresh session.
	Reset()
	// IsPlaying reports whether any scheduled chunk has not finished yet.
	IsPlaying() bool
	// Close stops playback and releases the output device. The player is
	// unusable afterwards.
	Close() error
}
