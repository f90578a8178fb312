package repositories

import (
	"context"

	"github.com/satriahrh/anamnesa/domain/entities"
)

// FileUploader stores a file on the platform and returns the attachment
// carrying the server-assigned id. Uploads happen out-of-band before the
// message referencing them is sent.
type FileUploader interface {
	Upload(ctx context.Context, name string, kind entities.AttachmentKind, content []byte) (entities.Attachment, error)
}
