package usecase

import (
	"context"
	"errors"
	"fmt"
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/history"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/iamvkosarev/ai-gateway-sdk/pkg/sse"
	"github.com/sashabaranov/go-openai"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"io"
	"sync"
	"sync/atomic"
)

type ChatGateway interface {
	StreamChat(ctx context.Context, meta model.ModelMetadata, messages []model.Message, state any) (*sse.Stream, error)
	CompleteChat(
		ctx context.Context, meta model.ModelMetadata, messages []model.Message, state any,
	) (model.CompletionResult, error)
}

type TokenCounter interface {
	CountTokens(messages []openai.ChatCompletionMessage, model string) (int, error)
}

type ChatUsecaseDeps struct {
	Gateway ChatGateway
	// History defaults to a fresh one seeded with the configured system prompt.
	History *history.History
	// TokenCounter is only needed when MaxContextTokens is set.
	TokenCounter TokenCounter
	Logger       *zap.Logger
}

// ChatUsecase runs one conversation: it appends the user's turn, streams the
// answer into the history and commits whatever arrived, even on failure.
type ChatUsecase struct {
	ChatUsecaseDeps
	cfg config.Chat

	mu     sync.Mutex
	meta   model.ModelMetadata
	state  any
	cancel context.CancelFunc

	sending atomic.Bool
}

func NewChatUsecase(deps ChatUsecaseDeps, cfg config.Chat) *ChatUsecase {
	if deps.History == nil {
		deps.History = history.New(cfg.SystemPrompt)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ChatUsecase{
		ChatUsecaseDeps: deps,
		cfg:             cfg,
		meta:            ModelMetadataFromConfig(cfg),
	}
}

// ModelMetadataFromConfig builds the metadata a chat starts with.
func ModelMetadataFromConfig(cfg config.Chat) model.ModelMetadata {
	meta := model.NewModelMetadata(model.ParseProvider(cfg.Provider), cfg.Model)
	if cfg.Temperature >= 0 {
		meta = meta.WithTemperature(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		meta = meta.WithMaxTokens(cfg.MaxTokens)
	}
	return meta
}

// SendMessage adds text as the user's turn and fetches the assistant answer.
// Only one send runs at a time; a concurrent call gets ErrSendInProgress and
// changes nothing.
func (c *ChatUsecase) SendMessage(ctx context.Context, text string) error {
	return c.send(ctx, model.NewUserMessage(text))
}

// SendParts sends a user turn built from parts, such as an image with a
// caption. It behaves like SendMessage otherwise.
func (c *ChatUsecase) SendParts(ctx context.Context, parts ...model.ContentPart) error {
	return c.send(ctx, model.NewMessage(model.RoleUser, parts...))
}

func (c *ChatUsecase) send(ctx context.Context, userMsg model.Message) error {
	if !c.sending.CompareAndSwap(false, true) {
		return model.ErrSendInProgress
	}
	defer c.sending.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	meta, state := c.meta, c.state
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	c.History.AddMessage(userMsg)
	if !meta.SupportsStreaming() {
		return c.complete(ctx, meta, state)
	}
	c.History.BeginStreamingResponse()

	var answer string
	err := c.stream(ctx, meta, state, &answer)
	c.History.CompleteStreamingMessage(answer)
	if err != nil {
		c.Logger.Warn("stream ended with error", zap.Int("answer_len", len(answer)), zap.Error(err))
		return fmt.Errorf("failed to stream answer: %w", err)
	}
	return nil
}

func (c *ChatUsecase) stream(ctx context.Context, meta model.ModelMetadata, state any, answer *string) error {
	stream, err := c.Gateway.StreamChat(ctx, meta, c.contextWindow(meta), state)
	if err != nil {
		return err
	}
	defer stream.Close()

	answerChan := make(chan string)
	var streamErr error

	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			defer close(answerChan)
			var currentAnswer string
			for {
				delta, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					streamErr = err
					return
				}
				if c.cfg.Accumulation == config.AccumulationCumulative {
					currentAnswer = delta
				} else {
					currentAnswer += delta
				}
				answerChan <- currentAnswer
			}
		},
	)
	wg.Go(
		func() {
			for currentAnswer := range answerChan {
				*answer = currentAnswer
				c.History.UpdateStreamingMessage(currentAnswer)
			}
		},
	)
	wg.Wait()
	return streamErr
}

func (c *ChatUsecase) complete(ctx context.Context, meta model.ModelMetadata, state any) error {
	result, err := c.Gateway.CompleteChat(ctx, meta, c.contextWindow(meta), state)
	if err != nil {
		return fmt.Errorf("failed to complete chat: %w", err)
	}
	answer := result.Content
	if answer == "" {
		answer = result.Refusal
	}
	c.History.AddAssistantMessage(answer)
	return nil
}

// contextWindow returns the committed messages, dropping the oldest turns
// until they fit MaxContextTokens. The system prompt and the newest message
// are always kept.
func (c *ChatUsecase) contextWindow(meta model.ModelMetadata) []model.Message {
	messages := c.History.Messages()
	if c.cfg.MaxContextTokens <= 0 || c.TokenCounter == nil {
		return messages
	}
	var system []model.Message
	if len(messages) > 0 && messages[0].Role == model.RoleSystem {
		system, messages = messages[:1:1], messages[1:]
	}
	trimmed := 0
	for len(messages) > 1 {
		window := append(append([]model.Message(nil), system...), messages...)
		tokenCount, err := c.TokenCounter.CountTokens(toOpenAIMessages(window), meta.Model)
		if err != nil {
			c.Logger.Warn("failed to count tokens", zap.Error(err))
			break
		}
		if tokenCount < c.cfg.MaxContextTokens {
			break
		}
		messages = messages[1:]
		trimmed++
	}
	if trimmed > 0 {
		c.Logger.Info("history trimmed due to token limit", zap.Int("dropped", trimmed))
	}
	return append(system, messages...)
}

// Cancel stops the send in flight, if any. The partial answer is still
// committed.
func (c *ChatUsecase) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// SetState sets the app state sent along with later messages. It is never
// stored in the history.
func (c *ChatUsecase) SetState(state any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// SetMetadata replaces the model settings. A send already running keeps the
// settings it started with.
func (c *ChatUsecase) SetMetadata(meta model.ModelMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = meta
}

func (c *ChatUsecase) Metadata() model.ModelMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

func (c *ChatUsecase) IsSending() bool {
	return c.sending.Load()
}

func (c *ChatUsecase) Messages() []model.Message {
	return c.History.Messages()
}

func (c *ChatUsecase) AllMessages() []model.Message {
	return c.History.AllMessages()
}

func (c *ChatUsecase) Subscribe(ctx context.Context) <-chan []model.Message {
	return c.History.Subscribe(ctx)
}

func (c *ChatUsecase) ClearHistory(keepSystemPrompt bool) {
	c.History.ClearHistory(keepSystemPrompt)
}

func (c *ChatUsecase) Close() {
	c.Cancel()
	c.History.Close()
}

func toOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(
			converted, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Text(),
			},
		)
	}
	return converted
}
