package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/iamvkosarev/ai-gateway-sdk/pkg/sse"
	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
	"io"
	"net/http"
	"net/url"
)

const stateSuffix = "\n\nThe current app state is: "

type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
}

type GatewayUsecaseDeps struct {
	Tokens     TokenProvider
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GatewayUsecase issues authenticated calls to the backend. A fresh access
// token is fetched right before every request.
type GatewayUsecase struct {
	GatewayUsecaseDeps
	cfg             config.Gateway
	format          sse.Format
	functionCallURL string
	modelCallURL    string
	streamURL       string
}

type imageURLDTO struct {
	URL string `json:"url"`
}

type contentDTO struct {
	Type     model.ContentType `json:"type"`
	Text     *string           `json:"text,omitempty"`
	ImageURL *imageURLDTO      `json:"image_url,omitempty"`
}

type messageDTO struct {
	Role    model.Role   `json:"role"`
	Content []contentDTO `json:"content"`
}

type modelCallRequest struct {
	Provider    model.Provider `json:"provider"`
	Model       string         `json:"model"`
	Messages    []messageDTO   `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"maxTokens,omitempty"`
}

type functionCallRequest struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	State  any    `json:"state,omitempty"`
}

type completionChoice struct {
	Message struct {
		Role    model.Role `json:"role"`
		Content string     `json:"content"`
		Refusal *string    `json:"refusal"`
	} `json:"message"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Content *string            `json:"content"`
	Usage   *model.Usage       `json:"usage"`
}

func NewGatewayUsecase(deps GatewayUsecaseDeps, cfg config.Gateway) (*GatewayUsecase, error) {
	appID, err := uuid.Parse(cfg.AppID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app id %q: %w", cfg.AppID, err)
	}
	functionCallURL, err := url.JoinPath(cfg.BaseURL, "v1", "function-call", appID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to build function call url: %w", err)
	}
	modelCallURL, err := url.JoinPath(cfg.BaseURL, "v1", "apps", appID.String(), "end-users", "model-call")
	if err != nil {
		return nil, fmt.Errorf("failed to build model call url: %w", err)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &GatewayUsecase{
		GatewayUsecaseDeps: deps,
		cfg:                cfg,
		format:             sse.ParseFormat(cfg.StreamFormat),
		functionCallURL:    functionCallURL,
		modelCallURL:       modelCallURL,
		streamURL:          modelCallURL + "/stream",
	}, nil
}

// ProcessFunctionCall asks the backend which functions prompt maps to, given
// the app state. When schema is set every call's parameters must satisfy it.
func (g *GatewayUsecase) ProcessFunctionCall(
	ctx context.Context,
	prompt string,
	state any,
	schema *jsonschema.Definition,
) ([]model.FunctionCall, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	req := functionCallRequest{
		ID:     g.cfg.AppID,
		Prompt: prompt,
		State:  state,
	}
	resp, err := g.post(ctx, "function call", g.functionCallURL, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.NetworkError{Op: "function call", Err: err}
	}
	var calls []model.FunctionCall
	if err = json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("failed to decode function calls: %w", errors.Join(model.ErrDecoding, err))
	}
	if schema != nil {
		for _, call := range calls {
			var params any
			if err = jsonschema.VerifySchemaAndUnmarshal(*schema, call.Parameters, &params); err != nil {
				return nil, fmt.Errorf(
					"failed to verify parameters of %s: %w", call.Name, errors.Join(model.ErrDecoding, err),
				)
			}
		}
	}
	g.Logger.Debug("function calls received", zap.Int("count", len(calls)))
	return calls, nil
}

// CompleteChat makes one non-streaming model call over messages.
func (g *GatewayUsecase) CompleteChat(
	ctx context.Context,
	meta model.ModelMetadata,
	messages []model.Message,
	state any,
) (model.CompletionResult, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.post(ctx, "model call", g.modelCallURL, newModelCallRequest(meta, messages, state), "application/json")
	if err != nil {
		return model.CompletionResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CompletionResult{}, &model.NetworkError{Op: "model call", Err: err}
	}
	var completion completionResponse
	if err = json.Unmarshal(raw, &completion); err != nil {
		return model.CompletionResult{}, fmt.Errorf(
			"failed to decode completion: %w", errors.Join(model.ErrInvalidResponse, err),
		)
	}
	result := model.CompletionResult{Role: model.RoleAssistant, Usage: completion.Usage}
	switch {
	case len(completion.Choices) > 0:
		choice := completion.Choices[0].Message
		if choice.Role != "" {
			result.Role = choice.Role
		}
		result.Content = choice.Content
		result.Refusal = lo.FromPtr(choice.Refusal)
	case completion.Content != nil:
		result.Content = *completion.Content
	default:
		return model.CompletionResult{}, fmt.Errorf("completion has no content: %w", model.ErrInvalidResponse)
	}
	return result, nil
}

// StreamChat opens a streaming model call. Providers without streaming are
// refused before any request is made. The caller must Close the stream.
func (g *GatewayUsecase) StreamChat(
	ctx context.Context,
	meta model.ModelMetadata,
	messages []model.Message,
	state any,
) (*sse.Stream, error) {
	if !meta.SupportsStreaming() {
		return nil, fmt.Errorf("failed to stream from %s: %w", meta.Provider, model.ErrUnsupportedProvider)
	}
	resp, err := g.post(ctx, "stream", g.streamURL, newModelCallRequest(meta, messages, state), "text/event-stream")
	if err != nil {
		return nil, err
	}
	g.Logger.Debug(
		"stream opened",
		zap.String("provider", string(meta.Provider)),
		zap.String("model", meta.Model),
		zap.Int("messages", len(messages)),
	)
	return sse.NewStream(ctx, resp.Body, g.format, func(err error) error {
		return &model.NetworkError{Op: "stream", Err: err}
	}), nil
}

// post sends payload with a fresh bearer token. Any non-2xx answer is mapped
// to an error and its body closed.
func (g *GatewayUsecase) post(ctx context.Context, op, target string, payload any, accept string) (*http.Response, error) {
	token, err := g.Tokens.GetValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token for %s: %w", op, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		g.Logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return nil, &model.NetworkError{Op: op, Err: err}
	}
	if err = model.StatusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		g.Logger.Warn("request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return nil, err
	}
	return resp, nil
}

func (g *GatewayUsecase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.RequestTimeout)
}

func newModelCallRequest(meta model.ModelMetadata, messages []model.Message, state any) modelCallRequest {
	req := modelCallRequest{
		Provider: meta.Provider,
		Model:    meta.Model,
		Messages: lo.Map(injectState(messages, state), func(msg model.Message, _ int) messageDTO {
			return newMessageDTO(msg)
		}),
	}
	if temperature, ok := meta.Temperature(); ok {
		req.Temperature = &temperature
	}
	if maxTokens, ok := meta.MaxTokens(); ok {
		req.MaxTokens = &maxTokens
	}
	return req
}

func newMessageDTO(msg model.Message) messageDTO {
	return messageDTO{
		Role: msg.Role,
		Content: lo.Map(msg.Content, func(part model.ContentPart, _ int) contentDTO {
			if part.Type == model.ContentTypeImageURL {
				return contentDTO{Type: part.Type, ImageURL: &imageURLDTO{URL: part.ImageURL}}
			}
			return contentDTO{Type: model.ContentTypeText, Text: lo.ToPtr(part.Text)}
		}),
	}
}

// injectState returns a copy of messages whose last user message carries the
// rendered state. messages itself is never modified.
func injectState(messages []model.Message, state any) []model.Message {
	injected := model.CloneMessages(messages)
	if state == nil {
		return injected
	}
	_, idx, ok := lo.FindLastIndexOf(injected, func(msg model.Message) bool {
		return msg.Role == model.RoleUser
	})
	if !ok {
		return injected
	}
	suffix := stateSuffix + renderState(state)
	msg := injected[idx]
	_, partIdx, ok := lo.FindLastIndexOf(msg.Content, func(part model.ContentPart) bool {
		return part.Type == model.ContentTypeText
	})
	if ok {
		msg.Content[partIdx].Text += suffix
	} else {
		msg.Content = append(msg.Content, model.TextPart(suffix))
	}
	injected[idx] = msg
	return injected
}

func renderState(state any) string {
	switch s := state.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Sprint(state)
	}
	return string(raw)
}
