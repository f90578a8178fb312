package audio

// NullSink discards all audio. Used when output is disabled and in tests
// that only care about scheduling behavior.
type NullSink struct{}

func (NullSink) Start() error             { return nil }
func (NullSink) WritePCM([]float32) error { return nil }
func (NullSink) Flush() error             { return nil }
func (NullSink) Close() error             { return nil }
