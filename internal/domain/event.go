package domain

import "encoding/json"

// InboundEvent is the chat-platform payload delivered to POST /webhook.
// Both the flat shape and the original Cliq shape (attachments nested
// under message) are accepted.
type InboundEvent struct {
	Message     EventMessage `json:"message"`
	User        EventUser    `json:"user"`
	Bot         EventBot     `json:"bot"`
	Chat        EventChat    `json:"chat"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// EventMessage carries message text and, on some platforms, the attachments.
type EventMessage struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// UnmarshalJSON accepts message as either an object or a bare string.
func (m *EventMessage) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = EventMessage{Text: s}
		return nil
	}
	type plain EventMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = EventMessage(p)
	return nil
}

type EventUser struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// EventBot identifies the bot a callback reply should be posted as.
type EventBot struct {
	Token      string `json:"token,omitempty"`
	UniqueName string `json:"unique_name,omitempty"`
}

type EventChat struct {
	ID string `json:"id,omitempty"`
}

// Attachment is a loosely-typed media record. Platforms disagree on the
// field that carries the link, so every known variant is decoded.
type Attachment struct {
	URL          string `json:"url,omitempty"`
	FileURL      string `json:"file_url,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
	Link         string `json:"link,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Name         string `json:"name,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
}

// FirstAttachment returns the first attachment of the event. Top-level
// attachments take precedence over message.attachments.
func (e InboundEvent) FirstAttachment() (Attachment, bool) {
	if len(e.Attachments) > 0 {
		return e.Attachments[0], true
	}
	if len(e.Message.Attachments) > 0 {
		return e.Message.Attachments[0], true
	}
	return Attachment{}, false
}

// Requester identifies the person who sent the image.
type Requester struct {
	Name  string
	Email string
}

const (
	DefaultRequesterName  = "User"
	DefaultRequesterEmail = "user@example.com"
)

// WithDefaults fills empty identity fields with the placeholder values
// the analysis service expects.
func (r Requester) WithDefaults() Requester {
	if r.Name == "" {
		r.Name = DefaultRequesterName
	}
	if r.Email == "" {
		r.Email = DefaultRequesterEmail
	}
	return r
}
