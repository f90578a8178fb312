package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

// Ensure Client implements the FileUploader interface
var _ repositories.FileUploader = (*Client)(nil)

const filesUploadPath = "/v1/files/upload"

type fileEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID       string `json:"id"`
		FileName string `json:"file_name"`
		Bytes    int64  `json:"bytes"`
	} `json:"data"`
}

// Upload stores a file on the platform and returns the attachment carrying
// the server-assigned file id. The caller references that id in the next
// outgoing message.
func (c *Client) Upload(ctx context.Context, name string, kind entities.AttachmentKind, content []byte) (entities.Attachment, error) {
	if len(content) == 0 {
		return entities.Attachment{}, fmt.Errorf("file %q is empty", name)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return entities.Attachment{}, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return entities.Attachment{}, fmt.Errorf("building upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return entities.Attachment{}, fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filesUploadPath, &body)
	if err != nil {
		return entities.Attachment{}, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.authorize(ctx, req); err != nil {
		return entities.Attachment{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entities.Attachment{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entities.Attachment{}, fmt.Errorf("upload failed: %s", failureFromResponse(resp))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return entities.Attachment{}, fmt.Errorf("reading upload response: %w", err)
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return entities.Attachment{}, fmt.Errorf("decoding upload response: %w", err)
	}
	if envelope.Code != 0 {
		return entities.Attachment{}, fmt.Errorf("upload rejected: %s", envelope.Msg)
	}
	if envelope.Data.ID == "" {
		return entities.Attachment{}, fmt.Errorf("upload response carries no file id")
	}

	c.logger.Info("File uploaded",
		zap.String("fileID", envelope.Data.ID),
		zap.String("name", name),
		zap.Int("size", len(content)))

	return entities.Attachment{
		ID:    envelope.Data.ID,
		Name:  name,
		Kind:  kind,
		State: entities.UploadDone,
	}, nil
}
