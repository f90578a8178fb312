package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

// errAttachmentPrep is the user-facing message when the pre-send attachment
// pipeline rejects; the underlying cause goes to the log only.
const errAttachmentPrep = "attachment preparation failed"

// PrepareAttachments runs before any network call of a turn. It may perform
// asynchronous uploads (for example synthesizing the text to speech and
// uploading the clip) and returns extra attachments for the outgoing
// message. A failure aborts the send entirely; nothing is partially sent.
type PrepareAttachments func(ctx context.Context) ([]entities.Attachment, error)

// StartOptions tune one turn of the session.
type StartOptions struct {
	PrepareAttachments PrepareAttachments
	// VoiceID overrides the client's configured output voice for this turn.
	VoiceID string
}

// ChatSession orchestrates one conversation with the hosted agent: it owns
// the transcript, runs at most one streaming request at a time, and feeds
// audio deltas to the player. Consumers read state through the observable
// accessors instead of return values, matching UI consumption: failures set
// Err, never panic or propagate.
type ChatSession struct {
	streamer repositories.ChatStreamer
	player   repositories.AudioPlayer
	logger   *zap.Logger

	mu             sync.Mutex
	messages       []entities.Message
	loading        bool
	errMsg         string
	conversationID string
	assistantID    string
	cancelActive   context.CancelFunc
	// generation fences callbacks of superseded attempts: bumped on every
	// Start and Reset so a stale stream can no longer touch session state.
	generation uint64
}

// NewChatSession creates a session on top of a streaming transport and an
// audio player.
func NewChatSession(streamer repositories.ChatStreamer, player repositories.AudioPlayer, logger *zap.Logger) *ChatSession {
	return &ChatSession{
		streamer: streamer,
		player:   player,
		logger:   logger,
	}
}

// Start sends one user message and streams the assistant's reply into the
// transcript. It blocks until the turn reaches a terminal state; run it in
// a goroutine when the caller needs to stay responsive. Starting while a
// previous turn is in flight cancels that turn first, so at most one
// request is active at any time.
//
// Start never returns an error: failures surface through Err, and a
// user-initiated Stop ends the turn silently.
func (s *ChatSession) Start(ctx context.Context, userMsg entities.Message, opts StartOptions) {
	s.mu.Lock()
	if s.cancelActive != nil {
		// Abort the in-flight request before the new one begins.
		s.cancelActive()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancelActive = cancel
	s.generation++
	gen := s.generation
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	defer cancel()

	// A fresh turn clears the player's stop latch.
	s.player.Reset()

	if opts.PrepareAttachments != nil {
		extra, err := opts.PrepareAttachments(streamCtx)
		if err != nil {
			if streamCtx.Err() != nil {
				s.settle(gen, entities.StreamResult{Outcome: entities.OutcomeCancelled})
				return
			}
			s.logger.Error("Attachment preparation failed", zap.Error(err))
			s.settle(gen, entities.StreamResult{Outcome: entities.OutcomeFailed, Reason: errAttachmentPrep})
			return
		}
		userMsg.Attachments = append(userMsg.Attachments, extra...)
	}
	userMsg.Attachments = entities.DedupeAttachments(userMsg.Attachments)

	if userMsg.ID == "" {
		userMsg.ID = uuid.NewString()
	}
	assistantID := uuid.NewString()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, userMsg)
	s.messages = append(s.messages, entities.NewAssistantPlaceholder(assistantID))
	s.assistantID = assistantID
	conversationID := s.conversationID
	s.mu.Unlock()

	result := s.streamer.Stream(streamCtx, repositories.ChatRequest{
		ConversationID: conversationID,
		Message:        userMsg,
		VoiceID:        opts.VoiceID,
	}, func(event entities.StreamEvent) error {
		s.handleEvent(gen, event)
		return nil
	})

	s.settle(gen, result)
}

// handleEvent applies one stream event to session state. Events of a
// superseded attempt are dropped.
func (s *ChatSession) handleEvent(gen uint64, event entities.StreamEvent) {
	switch ev := event.(type) {
	case entities.ChatCreated:
		s.mu.Lock()
		if gen == s.generation && s.conversationID == "" {
			s.conversationID = ev.ConversationID
		}
		s.mu.Unlock()

	case entities.MessageDelta:
		s.mu.Lock()
		if gen == s.generation {
			s.appendToAssistantLocked(ev)
		}
		s.mu.Unlock()

	case entities.AudioDelta:
		s.mu.Lock()
		live := gen == s.generation
		s.mu.Unlock()
		if live {
			// Schedule immediately; audio is never buffered for later.
			s.player.PlayChunk(ev.Content)
		}

	case entities.ChatCompleted:
		// Text is done. Loading drops now even though trailing audio may
		// still arrive during the transport's drain window.
		s.mu.Lock()
		if gen == s.generation {
			s.loading = false
		}
		s.mu.Unlock()
	}
}

// appendToAssistantLocked appends a delta fragment to the current assistant
// placeholder. Deltas arrive in send order, so append is all that's needed.
func (s *ChatSession) appendToAssistantLocked(ev entities.MessageDelta) {
	for i := range s.messages {
		if s.messages[i].ID == s.assistantID {
			s.messages[i].AppendDelta(ev.Content, ev.ChatID, ev.SectionID)
			return
		}
	}
}

// settle records the terminal result of an attempt, unless a newer attempt
// has superseded it.
func (s *ChatSession) settle(gen uint64, result entities.StreamResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if result.ConversationID != "" && s.conversationID == "" {
		s.conversationID = result.ConversationID
	}
	s.loading = false
	if result.Outcome == entities.OutcomeFailed {
		s.errMsg = result.Reason
	}
}

// Stop aborts the in-flight request, if any, and hard-stops audio playback.
// A stop is not a failure: Err stays exactly as it was and the transcript
// keeps whatever deltas had arrived.
func (s *ChatSession) Stop() {
	s.mu.Lock()
	if s.cancelActive != nil {
		s.cancelActive()
		s.cancelActive = nil
	}
	s.loading = false
	s.mu.Unlock()

	s.player.Stop()
}

// Reset stops the session and discards it entirely: transcript,
// conversation continuation, and any pending error.
func (s *ChatSession) Reset() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.messages = nil
	s.assistantID = ""
	s.conversationID = ""
	s.errMsg = ""
}

// Close stops the session and releases the audio output device. Call once
// when the owning connection or program shuts down.
func (s *ChatSession) Close() error {
	s.Stop()
	return s.player.Close()
}

// Messages returns a snapshot copy of the transcript.
func (s *ChatSession) Messages() []entities.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether a turn is currently streaming text.
func (s *ChatSession) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the user-facing reason of the last failed turn, empty when
// the last turn succeeded or was stopped.
func (s *ChatSession) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ConversationID returns the server-assigned conversation id, empty until
// the first response event of the session.
func (s *ChatSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// IsAudioPlaying reports whether reply audio is currently scheduled.
func (s *ChatSession) IsAudioPlaying() bool {
	return s.player.IsPlaying()
}

// StopAudio stops reply audio playback without touching the text stream.
func (s *ChatSession) StopAudio() {
	s.player.Stop()
}
