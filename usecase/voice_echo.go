package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
)

// NewVoiceEchoPreparer returns a PrepareAttachments hook that synthesizes
// the user's text into speech and uploads the clip, so the outgoing message
// carries a spoken copy alongside the text. The whole pipeline runs before
// the chat request is sent; any failure aborts the turn.
func NewVoiceEchoPreparer(synth repositories.SpeechSynthesizer, uploader repositories.FileUploader, text string, logger *zap.Logger) PrepareAttachments {
	return func(ctx context.Context) ([]entities.Attachment, error) {
		clip, err := synth.Synthesize(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("synthesizing voice echo: %w", err)
		}

		name := fmt.Sprintf("voice_%d%s", time.Now().UnixMilli(), clipExtension(clip))
		attachment, err := uploader.Upload(ctx, name, entities.AttachmentAudio, clip)
		if err != nil {
			return nil, fmt.Errorf("uploading voice echo: %w", err)
		}

		logger.Debug("Voice echo attached",
			zap.String("fileID", attachment.ID),
			zap.Int("bytes", len(clip)))
		return []entities.Attachment{attachment}, nil
	}
}

// clipExtension picks a file extension from the clip's magic bytes. The
// synthesizer backend decides the container, not the caller.
func clipExtension(clip []byte) string {
	if len(clip) >= 4 && string(clip[:4]) == "RIFF" {
		return ".wav"
	}
	return ".mp3"
}
