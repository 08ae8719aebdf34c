package model

import (
	"strings"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// Visibility controls who can see a message.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// ContentKind tags the variant held by Content.
type ContentKind string

const (
	ContentText               ContentKind = "text"
	ContentAttachment         ContentKind = "attachment"
	ContentTextWithAttachment ContentKind = "text_attachment"
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Content is the body of a message. The zero value is not a valid message
// body; use TextContent, AttachmentContent or NewContent.
type Content struct {
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// TextContent returns a text-only body.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// AttachmentContent returns an attachment-only body.
func AttachmentContent(a Attachment) Content {
	return Content{Kind: ContentAttachment, Attachment: &a}
}

// NewContent builds the variant matching whichever parts are present. It
// returns false when neither text nor attachment is given.
func NewContent(text string, a *Attachment) (Content, bool) {
	text = strings.TrimSpace(text)
	hasAttachment := a != nil && a.URL != ""
	switch {
	case text != "" && hasAttachment:
		att := *a
		return Content{Kind: ContentTextWithAttachment, Text: text, Attachment: &att}, true
	case text != "":
		return TextContent(text), true
	case hasAttachment:
		return AttachmentContent(*a), true
	default:
		return Content{}, false
	}
}

// Valid reports whether c is one of the three tagged variants.
func (c Content) Valid() bool {
	switch c.Kind {
	case ContentText:
		return c.Text != ""
	case ContentAttachment:
		return c.Attachment != nil
	case ContentTextWithAttachment:
		return c.Text != "" && c.Attachment != nil
	}
	return false
}

// Sender identifies who authored a message.
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// Message represents one entry in a conversation's log.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Sender         Sender     `json:"sender"`
	Content        Content    `json:"content"`
	Timestamp      time.Time  `json:"timestamp"`
	Visibility     Visibility `json:"visibility"`
	Read           bool       `json:"read"`
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	out := m
	if m.Content.Attachment != nil {
		a := *m.Content.Attachment
		out.Content.Attachment = &a
	}
	return out
}

// IsPublic reports whether the message is visible to the customer.
func (m Message) IsPublic() bool {
	return m.Visibility != VisibilityInternal
}

// SendMessageRequest is the request to send a message.
type SendMessageRequest struct {
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Internal   bool        `json:"internal,omitempty"`
}

// AssistRequest asks the completion service to help an agent.
type AssistRequest struct {
	Mode  string `json:"mode"`
	Draft string `json:"draft,omitempty"`
}

// AssistResponse carries the generated assistance text.
type AssistResponse struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
