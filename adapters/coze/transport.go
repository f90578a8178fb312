package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

// Ensure Client implements the ChatStreamer interface
var _ repositories.ChatStreamer = (*Client)(nil)

const chatPath = "/v3/chat"

// maxErrorBody caps how much of a failed response body is read for the
// user-facing error message.
const maxErrorBody = 8 * 1024

type chatPayload struct {
	BotID              string            `json:"bot_id"`
	UserID             string            `json:"user_id"`
	Stream             bool              `json:"stream"`
	AutoSaveHistory    bool              `json:"auto_save_history"`
	Parameters         map[string]any    `json:"parameters,omitempty"`
	AdditionalMessages []outgoingMessage `json:"additional_messages"`
	OutputAudio        *outputAudio      `json:"output_audio,omitempty"`
}

type outputAudio struct {
	VoiceID string `json:"voice_id,omitempty"`
	Format  string `json:"format"`
}

type outgoingMessage struct {
	Role        string `json:"role"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// objectStringItem is one part of a multimodal message body: a text segment
// or a reference to an uploaded file.
type objectStringItem struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// Stream opens one streaming chat turn and dispatches every parsed event to
// handler in arrival order. It blocks until the turn reaches a terminal
// state. Cancelling ctx aborts the request and yields a cancelled result.
//
// After the text-completion event the connection is kept open for a bounded
// grace window so trailing audio deltas of the same turn can still arrive;
// only then is the request torn down.
func (c *Client) Stream(ctx context.Context, req repositories.ChatRequest, handler repositories.EventHandler) entities.StreamResult {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	payload, err := c.buildChatPayload(req)
	if err != nil {
		return failure(fmt.Sprintf("building chat request: %v", err))
	}

	endpoint := c.baseURL + chatPath
	if req.ConversationID != "" {
		endpoint += "?conversation_id=" + url.QueryEscape(req.ConversationID)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return failure(fmt.Sprintf("building chat request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(reqCtx, httpReq); err != nil {
		return failure(err.Error())
	}

	c.logger.Debug("Opening chat stream",
		zap.String("botID", c.botID),
		zap.String("conversationID", req.ConversationID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return failure(fmt.Sprintf("chat request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(failureFromResponse(resp))
	}

	scanner := newEventScanner(resp.Body)
	state := entities.StreamStreaming
	var result entities.StreamResult
	var drainTimer *time.Timer
	defer func() {
		if drainTimer != nil {
			drainTimer.Stop()
		}
	}()

	for {
		if ctx.Err() != nil {
			// The caller aborted; blocks already sitting in the scanner's
			// buffer are not dispatched.
			if state == entities.StreamDraining {
				return completed(result)
			}
			return cancelled()
		}

		name, data, scanErr := scanner.Next()
		if scanErr != nil {
			switch {
			case scanErr == io.EOF:
				return completed(result)
			case state == entities.StreamDraining:
				// The grace window expired and tore down the connection, or
				// the caller stopped mid-drain. The turn itself finished.
				return completed(result)
			case ctx.Err() != nil:
				return cancelled()
			default:
				return failure(fmt.Sprintf("reading chat stream: %v", scanErr))
			}
		}

		if isDone(data) {
			return completed(result)
		}

		event, decErr := entities.DecodeEvent(name, []byte(data))
		if decErr != nil {
			c.logger.Warn("Skipping undecodable stream event",
				zap.String("event", name),
				zap.Error(decErr))
			continue
		}
		if event == nil {
			// Unknown event name, skip for forward compatibility.
			continue
		}

		if state == entities.StreamDraining {
			if _, ok := event.(entities.AudioDelta); !ok {
				continue
			}
		}

		latchConversationID(&result, event)

		if err := handler(event); err != nil {
			return failure(err.Error())
		}

		switch ev := event.(type) {
		case entities.ChatFailed:
			return entities.StreamResult{
				Outcome:        entities.OutcomeFailed,
				Reason:         ev.FailureMessage(),
				ConversationID: result.ConversationID,
			}
		case entities.ChatCompleted:
			if state.CanTransition(entities.StreamDraining) {
				state = entities.StreamDraining
				drainTimer = time.AfterFunc(c.drainGrace, cancel)
			}
		}
	}
}

func (c *Client) buildChatPayload(req repositories.ChatRequest) ([]byte, error) {
	msg, err := encodeOutgoingMessage(req.Message)
	if err != nil {
		return nil, err
	}

	payload := chatPayload{
		BotID:           c.botID,
		UserID:          c.userID,
		Stream:          true,
		AutoSaveHistory: true,
		Parameters: map[string]any{
			"user": []map[string]string{
				{"user_id": c.userID, "user_name": "user"},
			},
		},
		AdditionalMessages: []outgoingMessage{msg},
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.voiceID
	}
	if voiceID != "" {
		payload.OutputAudio = &outputAudio{VoiceID: voiceID, Format: "pcm"}
	}

	return json.Marshal(payload)
}

// encodeOutgoingMessage renders a transcript message into the wire format.
// Messages without attachments are plain text; messages with attachments
// become an object_string body of text plus file references.
func encodeOutgoingMessage(msg entities.Message) (outgoingMessage, error) {
	out := outgoingMessage{
		Role:        string(msg.Role),
		Type:        "question",
		Content:     msg.Content,
		ContentType: "text",
	}

	attachments := entities.DedupeAttachments(msg.Attachments)
	if len(attachments) == 0 {
		return out, nil
	}

	items := make([]objectStringItem, 0, len(attachments)+1)
	if msg.Content != "" {
		items = append(items, objectStringItem{Type: "text", Text: msg.Content})
	}
	for _, a := range attachments {
		if a.ID == "" {
			return outgoingMessage{}, fmt.Errorf("attachment %q has no uploaded file id", a.Key())
		}
		items = append(items, objectStringItem{Type: objectTypeFor(a.Kind), FileID: a.ID})
	}

	content, err := json.Marshal(items)
	if err != nil {
		return outgoingMessage{}, fmt.Errorf("encoding attachments: %w", err)
	}
	out.Content = string(content)
	out.ContentType = "object_string"
	return out, nil
}

func objectTypeFor(kind entities.AttachmentKind) string {
	switch kind {
	case entities.AttachmentImage:
		return "image"
	case entities.AttachmentAudio:
		return "audio"
	default:
		return "file"
	}
}

// latchConversationID records the conversation id from the first event that
// carries one. Subsequent turns of the session pass it back as the
// continuation parameter.
func latchConversationID(result *entities.StreamResult, event entities.StreamEvent) {
	if result.ConversationID != "" {
		return
	}
	switch ev := event.(type) {
	case entities.ChatCreated:
		result.ConversationID = ev.ConversationID
	case entities.MessageDelta:
		result.ConversationID = ev.ConversationID
	case entities.AudioDelta:
		result.ConversationID = ev.ConversationID
	}
}

// failureFromResponse extracts a human-readable reason from a non-2xx
// response: the JSON msg field when the body parses, the status line
// otherwise.
func failureFromResponse(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Msg != "" {
		return parsed.Msg
	}
	return resp.Status
}

func failure(reason string) entities.StreamResult {
	return entities.StreamResult{Outcome: entities.OutcomeFailed, Reason: reason}
}

func cancelled() entities.StreamResult {
	return entities.StreamResult{Outcome: entities.OutcomeCancelled}
}

func completed(result entities.StreamResult) entities.StreamResult {
	result.Outcome = entities.OutcomeCompleted
	return result
}
