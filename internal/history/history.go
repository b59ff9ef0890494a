// Package history holds the canonical conversation log of one chat and the
// protocol for growing its last assistant message from a stream.
package history

import (
	"context"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/samber/lo"
	"slices"
	"sync"
)

// History is the in-memory message log. All commands are serialised by one
// mutex and each successful mutation is published to subscribers, in command
// order. A message added while a response streams is placed before it. Commands never fail: an update or completion with no active stream
// is ignored, which lets a late chunk arrive after ClearHistory without harm.
type History struct {
	mu          sync.Mutex
	messages    []model.Message
	streamingID string
	broadcast   *broadcaster
}

func New(systemPrompt string) *History {
	return &History{
		messages:  []model.Message{model.NewSystemMessage(systemPrompt)},
		broadcast: newBroadcaster(),
	}
}

func (h *History) AddUserMessage(text string) {
	h.append(model.NewUserMessage(text))
}

func (h *History) AddAssistantMessage(text string) {
	h.append(model.NewAssistantMessage(text))
}

// AddMessage appends a complete message, for callers that build their own
// content such as images.
func (h *History) AddMessage(msg model.Message) {
	msg = msg.Clone()
	msg.State = model.MessageStateComplete
	h.append(msg)
}

func (h *History) append(msg model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// the streaming message stays last
	if idx, ok := h.streamingIndex(); ok {
		h.messages = slices.Insert(h.messages, idx, msg)
	} else {
		h.messages = append(h.messages, msg)
	}
	h.notify()
}

// BeginStreamingResponse appends an empty streaming assistant message and
// returns its id. If a stream is already active it returns that id and
// changes nothing.
func (h *History) BeginStreamingResponse() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.streamingID != "" {
		return h.streamingID
	}
	msg := model.NewAssistantMessage("")
	msg.State = model.MessageStateStreaming
	h.messages = append(h.messages, msg)
	h.streamingID = msg.ID
	h.notify()
	return msg.ID
}

// UpdateStreamingMessage replaces the text of the active streaming message.
func (h *History) UpdateStreamingMessage(partial string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.streamingIndex()
	if !ok {
		return
	}
	msg := h.messages[idx].WithText(partial)
	msg.State = model.MessageStateStreaming
	h.messages[idx] = msg
	h.notify()
}

// CompleteStreamingMessage seals the active streaming message with its final
// text and returns the history to idle.
func (h *History) CompleteStreamingMessage(final string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.streamingIndex()
	if !ok {
		return
	}
	msg := h.messages[idx].WithText(final)
	msg.State = model.MessageStateComplete
	h.messages[idx] = msg
	h.streamingID = ""
	h.notify()
}

func (h *History) ClearHistory(keepSystemPrompt bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.streamingID = ""
	if keepSystemPrompt && len(h.messages) > 0 && h.messages[0].Role == model.RoleSystem {
		h.messages = h.messages[:1:1]
	} else {
		h.messages = nil
	}
	h.notify()
}

// Messages returns the committed history: every complete message, never the
// one still streaming.
func (h *History) Messages() []model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	committed := lo.Filter(h.messages, func(msg model.Message, _ int) bool {
		return !msg.IsStreaming()
	})
	return model.CloneMessages(committed)
}

// AllMessages returns every message including a live streaming one.
func (h *History) AllMessages() []model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

func (h *History) IsStreaming() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streamingID != ""
}

// StreamingMessageID returns the id of the active streaming message, if any.
func (h *History) StreamingMessageID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streamingID, h.streamingID != ""
}

// Subscribe returns a feed of full snapshots. The current snapshot is
// available immediately; after that the channel always holds the latest
// snapshot not yet read. The channel is closed when ctx is done or the
// history is closed.
func (h *History) Subscribe(ctx context.Context) <-chan []model.Message {
	h.mu.Lock()
	id, ch := h.broadcast.subscribe(h.snapshot())
	h.mu.Unlock()

	if id != 0 {
		go func() {
			select {
			case <-ctx.Done():
				h.broadcast.unsubscribe(id)
			case <-h.broadcast.done:
			}
		}()
	}
	return ch
}

// Close ends every subscription. The history stays usable but publishes to
// nobody.
func (h *History) Close() {
	h.broadcast.close()
}

func (h *History) streamingIndex() (int, bool) {
	if h.streamingID == "" {
		return 0, false
	}
	_, idx, ok := lo.FindLastIndexOf(h.messages, func(msg model.Message) bool {
		return msg.ID == h.streamingID
	})
	return idx, ok
}

func (h *History) snapshot() []model.Message {
	return model.CloneMessages(h.messages)
}

func (h *History) notify() {
	h.broadcast.publish(h.snapshot)
}
