package coze

import (
	"bytes"
	"io"
	"strings"
)

// doneSentinel terminates a stream successfully. The platform sends it as a
// JSON string, so the raw data line carries the surrounding quotes.
const doneSentinel = `"[DONE]"`

const readChunkSize = 4096

// eventScanner incrementally splits a streaming response body into SSE
// blocks. Network reads may cut blocks anywhere; the scanner buffers raw
// bytes, emits each complete `event:`/`data:` block, and keeps the trailing
// partial block for the next read.
type eventScanner struct {
	reader io.Reader
	buf    bytes.Buffer
	chunk  []byte
	eof    bool
}

func newEventScanner(r io.Reader) *eventScanner {
	return &eventScanner{
		reader: r,
		chunk:  make([]byte, readChunkSize),
	}
}

// Next returns the next complete block's event name and data payload.
// It returns io.EOF when the stream ends, after emitting any final
// unterminated block that still carries data.
func (s *eventScanner) Next() (string, string, error) {
	for {
		if block, ok := s.cutBlock(); ok {
			name, data := parseBlock(block)
			if data == "" && name == "" {
				continue
			}
			return name, data, nil
		}

		if s.eof {
			// Stream ended mid-block. Emit the leftover if it holds data.
			rest := s.buf.String()
			s.buf.Reset()
			if name, data := parseBlock(rest); data != "" {
				return name, data, nil
			}
			return "", "", io.EOF
		}

		n, err := s.reader.Read(s.chunk)
		if n > 0 {
			s.buf.Write(s.chunk[:n])
		}
		if err == io.EOF {
			s.eof = true
			continue
		}
		if err != nil {
			return "", "", err
		}
	}
}

// cutBlock removes and returns the first complete block from the buffer.
func (s *eventScanner) cutBlock() (string, bool) {
	raw := s.buf.Bytes()
	idx := bytes.Index(raw, []byte("\n\n"))
	if idx < 0 {
		return "", false
	}
	block := string(raw[:idx])
	s.buf.Next(idx + 2)
	return block, true
}

// parseBlock extracts the event name and data payload from one block.
// Multiple data lines are joined with newlines per the SSE convention.
func parseBlock(block string) (name, data string) {
	var dataLines []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return name, strings.Join(dataLines, "\n")
}

// isDone reports whether a data payload is the stream-termination sentinel.
func isDone(data string) bool {
	trimmed := strings.TrimSpace(data)
	return trimmed == doneSentinel || trimmed == "[DONE]"
}
