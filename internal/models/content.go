package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"hire-realtime/internal/apperr"
)

// MaxTextLength bounds text message bodies and attachment captions.
const MaxTextLength = 4000

// ContentType tags a message content variant.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentAttachment ContentType = "attachment"
	ContentSystem     ContentType = "system"
)

// ErrInvalidContent is returned for malformed or unknown content variants.
var ErrInvalidContent = apperr.New(apperr.KindValidation, "invalid_content", "invalid message content")

// Attachment references a file already persisted by the upload service.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SystemEvent is a message generated by the platform rather than a user.
type SystemEvent struct {
	Event string `json:"event"`
	Text  string `json:"text,omitempty"`
}

// Content is the tagged union carried by a message. Exactly one variant is
// populated according to Type.
type Content struct {
	Type       ContentType  `json:"type"`
	Text       string       `json:"text,omitempty"`
	Attachment *Attachment  `json:"attachment,omitempty"`
	System     *SystemEvent `json:"system,omitempty"`
}

// TextContent is a shorthand for a plain text message.
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// UnmarshalJSON accepts either the tagged object or a bare string, which is
// read as text content.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = TextContent(text)
		return nil
	}
	type plain Content
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Content(decoded)
	return nil
}

// Validate checks the schema of the populated variant.
func (c Content) Validate() error {
	switch c.Type {
	case ContentText:
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return ErrInvalidContent.WithCause(errors.New("text is empty"))
		}
		if utf8.RuneCountInString(text) > MaxTextLength {
			return ErrInvalidContent.WithCause(fmt.Errorf("text exceeds %d characters", MaxTextLength))
		}
		if c.Attachment != nil || c.System != nil {
			return ErrInvalidContent.WithCause(errors.New("text content carries another variant"))
		}
	case ContentAttachment:
		if c.Attachment == nil || strings.TrimSpace(c.Attachment.URL) == "" {
			return ErrInvalidContent.WithCause(errors.New("attachment url is required"))
		}
		if c.Attachment.Size < 0 {
			return ErrInvalidContent.WithCause(errors.New("attachment size is negative"))
		}
		if utf8.RuneCountInString(c.Text) > MaxTextLength {
			return ErrInvalidContent.WithCause(fmt.Errorf("caption exceeds %d characters", MaxTextLength))
		}
	case ContentSystem:
		if c.System == nil || strings.TrimSpace(c.System.Event) == "" {
			return ErrInvalidContent.WithCause(errors.New("system event is required"))
		}
	default:
		return ErrInvalidContent.WithCause(fmt.Errorf("unknown content type %q", c.Type))
	}
	return nil
}

// Value stores content as JSONB.
func (c Content) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan reads content from a JSONB column.
func (c *Content) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = Content{}
		return nil
	default:
		return fmt.Errorf("content: unsupported scan type %T", src)
	}
}
