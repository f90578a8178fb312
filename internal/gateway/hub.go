package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/internal/audio"
	"github.com/satriahrh/anamnesa/usecase"
)

// Session is the slice of usecase.ChatSession the gateway drives. Kept as an
// interface so hub tests can run against a stub.
type Session interface {
	Start(ctx context.Context, msg entities.Message, opts usecase.StartOptions)
	Stop()
	StopAudio()
	Reset()
	Close() error
	Messages() []entities.Message
	Loading() bool
	Err() string
	ConversationID() string
	IsAudioPlaying() bool
}

var _ Session = (*usecase.ChatSession)(nil)

// SessionFactory builds a fresh session whose reply audio goes to the given
// sink. Each websocket client gets its own session and sink.
type SessionFactory func(sink audio.Sink) Session

// VoiceEchoFactory builds the attachment hook that adds a spoken copy of the
// user's text to a turn. Nil when voice echo is not configured.
type VoiceEchoFactory func(text string) usecase.PrepareAttachments

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	newSession SessionFactory
	voiceEcho  VoiceEchoFactory

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. voiceEcho may be nil.
func NewHub(newSession SessionFactory, voiceEcho VoiceEchoFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		newSession: newSession,
		voiceEcho:  voiceEcho,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// A reconnecting client replaces its previous connection.
			if prev, ok := h.clients[client.clientID]; ok {
				prev.shutdown()
			}
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.clientID]; ok && current == client {
				delete(h.clients, client.clientID)
			}
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
