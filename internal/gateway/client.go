package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// How often transcript and state snapshots are pushed while a turn is
	// streaming.
	pushInterval = 150 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WriteData struct {
	// Type is the websocket message type, websocket.TextMessage or
	// websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client is a middleman between one websocket connection and its session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the connection is torn down; fences late sends.
	done chan struct{}

	clientID string

	session Session

	logger *zap.Logger

	closeOnce sync.Once

	// Cancels the in-flight turn's context, nil when idle.
	mutex      sync.Mutex
	turnCancel context.CancelFunc
}

// HandleWebSocket upgrades an authenticated request and runs the client's
// pumps. The clientID comes from the validated token.
func HandleWebSocket(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		done:     make(chan struct{}),
		clientID: clientID,
		logger:   logger.With(zap.String("clientID", clientID)),
	}
	client.session = hub.newSession(newStreamSink(client))

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	// Initial snapshot so the client starts from known state.
	client.pushTranscript()
	client.pushState()

	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.session.Close(); err != nil {
			c.logger.Warn("Session close failed", zap.Error(err))
		}
	})
}

// trySend queues an outbound frame, dropping it when the client is gone or
// its buffer is full.
func (c *Client) trySend(data WriteData) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("Dropping frame, send buffer full", zap.Int("type", data.Type))
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}
	c.trySend(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text frame", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one parsed client message.
func (c *Client) processMessage(raw []byte) {
	parsed, err := ParseInbound(raw)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.Error(err))
		c.sendJSON(NewErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *ChatMessage:
		c.handleChat(msg)

	case *BaseMessage:
		switch msg.Type {
		case MessageTypeStop:
			c.cancelTurn()
			c.session.Stop()
			c.pushState()
		case MessageTypeStopAudio:
			c.session.StopAudio()
			c.pushState()
		case MessageTypeReset:
			c.cancelTurn()
			c.session.Reset()
			c.pushTranscript()
			c.pushState()
		case MessageTypePing:
			c.sendJSON(NewPongMessage(""))
		}
	}
}

// handleChat starts one turn and pushes snapshots until it settles. A chat
// arriving mid-turn supersedes the running one, which the session cancels.
func (c *Client) handleChat(msg *ChatMessage) {
	var attachments []entities.Attachment
	for _, id := range msg.FileIDs {
		attachments = append(attachments, entities.Attachment{
			ID:    id,
			Kind:  entities.AttachmentDocument,
			State: entities.UploadDone,
		})
	}
	userMsg := entities.NewUserMessage("", msg.Text, attachments)

	opts := usecase.StartOptions{}
	if msg.VoiceEcho && c.hub.voiceEcho != nil {
		opts.PrepareAttachments = c.hub.voiceEcho(msg.Text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mutex.Lock()
	if c.turnCancel != nil {
		c.turnCancel()
	}
	c.turnCancel = cancel
	c.mutex.Unlock()

	turnDone := make(chan struct{})
	go func() {
		defer close(turnDone)
		c.session.Start(ctx, userMsg, opts)
	}()

	go func() {
		defer cancel()
		ticker := time.NewTicker(pushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-turnDone:
				c.pushTranscript()
				c.pushState()
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.pushTranscript()
				c.pushState()
			}
		}
	}()
}

func (c *Client) cancelTurn() {
	c.mutex.Lock()
	if c.turnCancel != nil {
		c.turnCancel()
		c.turnCancel = nil
	}
	c.mutex.Unlock()
}

func (c *Client) pushTranscript() {
	c.sendJSON(NewTranscriptMessage(c.session.Messages()))
}

func (c *Client) pushState() {
	c.sendJSON(NewStateMessage(
		c.session.Loading(),
		c.session.Err(),
		c.session.IsAudioPlaying(),
		c.session.ConversationID(),
	))
}
