package repositories

import (
	"context"

	"github.com/satriahrh/anamnesa/domain/entities"
)

// ChatRequest is everything the transport needs to open one streaming turn.
type ChatRequest struct {
	// ConversationID continues an existing conversation; empty on the first
	// turn of a session.
	ConversationID string
	// Message is the outgoing user message, attachments already uploaded.
	Message entities.Message
	// VoiceID selects the synthesized voice for audio deltas. Empty disables
	// audio output.
	VoiceID string
}

// EventHandler receives each parsed stream event in arrival order. Returning
// an error stops the stream and surfaces the error as a failure.
type EventHandler func(event entities.StreamEvent) error

// ChatStreamer opens one streaming chat request and dispatches its events.
// The call blocks until the stream reaches a terminal state; cancelling ctx
// yields a cancelled result, never an error.
type ChatStreamer interface {
	Stream(ctx context.Context, req ChatRequest, handler EventHandler) entities.StreamResult
}
