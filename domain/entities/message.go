package entities

import "time"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentKind classifies a file referenced by a message.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentDocument AttachmentKind = "document"
)

// UploadState tracks the lifecycle of an attachment upload.
type UploadState string

const (
	UploadPending   UploadState = "pending"
	UploadUploading UploadState = "uploading"
	UploadDone      UploadState = "done"
	UploadFailed    UploadState = "failed"
)

// Attachment references a file that was uploaded to the platform before the
// message carrying it was sent. ID is the server-assigned file id once the
// upload finished; LocalUID identifies the file before that.
type Attachment struct {
	ID       string         `json:"id,omitempty"`
	LocalUID string         `json:"local_uid,omitempty"`
	Name     string         `json:"name,omitempty"`
	Kind     AttachmentKind `json:"kind"`
	State    UploadState    `json:"state"`
}

// Key returns the stable identity used for attachment deduplication: the
// server id when assigned, otherwise the local uid, otherwise the file name.
func (a Attachment) Key() string {
	if a.ID != "" {
		return a.ID
	}
	if a.LocalUID != "" {
		return a.LocalUID
	}
	return a.Name
}

// DedupeAttachments removes duplicate attachments, keeping the first
// occurrence of each key and preserving order. The input slice is left
// untouched.
func DedupeAttachments(attachments []Attachment) []Attachment {
	if len(attachments) < 2 {
		return attachments
	}
	seen := make(map[string]struct{}, len(attachments))
	out := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		key := a.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Message is a single entry in the conversation transcript. Assistant
// messages start as empty placeholders and grow by delta appends while a
// stream is active.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ChatID      string       `json:"chat_id,omitempty"`
	SectionID   string       `json:"section_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AppendDelta appends an incremental content fragment and stamps the message
// with the latest chat/section metadata.
func (m *Message) AppendDelta(content, chatID, sectionID string) {
	m.Content += content
	if chatID != "" {
		m.ChatID = chatID
	}
	if sectionID != "" {
		m.SectionID = sectionID
	}
}

// NewUserMessage builds a user message ready to send.
func NewUserMessage(id, content string, attachments []Attachment) Message {
	return Message{
		ID:          id,
		Role:        RoleUser,
		Content:     content,
		Attachments: DedupeAttachments(attachments),
		CreatedAt:   time.Now(),
	}
}

// NewAssistantPlaceholder builds the empty assistant message that incoming
// deltas are appended to.
func NewAssistantPlaceholder(id string) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		Content:   "",
		CreatedAt: time.Now(),
	}
}
