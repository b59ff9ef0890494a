package model

import (
	"github.com/google/uuid"
	"strings"
)

type ContentType string

const (
	ContentTypeText     = ContentType("text")
	ContentTypeImageURL = ContentType("image_url")
)

type ContentPart struct {
	Type     ContentType
	Text     string
	ImageURL string
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentTypeImageURL, ImageURL: url}
}

type MessageState int8

const (
	MessageStateComplete = MessageState(iota)
	MessageStateStreaming
)

// Message is one conversational turn. ID and Role never change once the
// message is created; the history replaces Content and State as a stream
// progresses.
type Message struct {
	ID      string
	Role    Role
	Content []ContentPart
	State   MessageState
}

func NewMessage(role Role, parts ...ContentPart) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: parts,
		State:   MessageStateComplete,
	}
}

func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart(text))
}

func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart(text))
}

func NewUserImageMessage(url string) Message {
	return NewMessage(RoleUser, ImagePart(url))
}

func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart(text))
}

// Text joins the text parts of the message, ignoring images.
func (m Message) Text() string {
	if len(m.Content) == 1 {
		return m.Content[0].Text
	}
	var b strings.Builder
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// WithText returns a copy of m whose content is a single text part.
func (m Message) WithText(text string) Message {
	m.Content = []ContentPart{TextPart(text)}
	return m
}

func (m Message) IsStreaming() bool {
	return m.State == MessageStateStreaming
}

// Clone returns a copy that shares no content slice with m.
func (m Message) Clone() Message {
	if m.Content != nil {
		parts := make([]ContentPart, len(m.Content))
		copy(parts, m.Content)
		m.Content = parts
	}
	return m
}

func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	cloned := make([]Message, len(messages))
	for i, m := range messages {
		cloned[i] = m.Clone()
	}
	return cloned
}
