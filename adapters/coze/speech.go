package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/repositories"
)

// Ensure Client implements the speech interfaces
var (
	_ repositories.SpeechSynthesizer = (*Client)(nil)
	_ repositories.VoiceCatalog      = (*Client)(nil)
)

const (
	speechPath = "/v1/audio/speech"
	voicesPath = "/v1/audio/voices"
)

type speechRequest struct {
	VoiceID        string `json:"voice_id"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize converts text to a complete WAV clip using the configured
// voice. Used by the voice-echo preparation step that attaches a spoken copy
// of the user's text to the outgoing message.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if c.voiceID == "" {
		return nil, fmt.Errorf("no voice id configured")
	}

	payload, err := json.Marshal(speechRequest{
		VoiceID:        c.voiceID,
		Input:          text,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+speechPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech synthesis failed: %s", failureFromResponse(resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech response is empty")
	}

	c.logger.Debug("Speech synthesized",
		zap.String("voiceID", c.voiceID),
		zap.Int("bytes", len(audio)))
	return audio, nil
}

type voicesEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		VoiceList []repositories.Voice `json:"voice_list"`
	} `json:"data"`
}

// ListVoices fetches the catalog of voices available for audio output.
func (c *Client) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building voices request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing voices failed: %s", failureFromResponse(resp))
	}

	var envelope voicesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding voices response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("listing voices rejected: %s", envelope.Msg)
	}

	c.logger.Info("Fetched voice catalog", zap.Int("count", len(envelope.Data.VoiceList)))
	return envelope.Data.VoiceList, nil
}
