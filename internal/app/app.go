package app

import (
	"context"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	in_memory "github.com/iamvkosarev/ai-gateway-sdk/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/ai-gateway-sdk/internal/storage/key-value"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/usecase"
	openai_tools "github.com/iamvkosarev/ai-gateway-sdk/pkg/openai-tools"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"io"
	"net/http"
	"sync"
)

type options struct {
	logger        *zap.Logger
	httpClient    *http.Client
	secretStorage usecase.SecretStorage
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient replaces the transport used for every backend call.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithSecretStorage overrides the configured secret store backend. If the
// storage implements io.Closer it is closed with the App.
func WithSecretStorage(storage usecase.SecretStorage) Option {
	return func(o *options) {
		o.secretStorage = storage
	}
}

type closer struct {
	name string
	io.Closer
}

// App wires the token manager, gateway client and chats from one config.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Tokens  *usecase.TokenUsecase
	Gateway *usecase.GatewayUsecase

	mu      sync.Mutex
	chats   []*usecase.ChatUsecase
	closers []closer
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Log); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	a := &App{
		cfg:    *cfg,
		logger: logger,
	}

	secretStorage := o.secretStorage
	switch {
	case secretStorage != nil:
		if c, ok := secretStorage.(io.Closer); ok {
			a.closers = append(a.closers, closer{name: "secret storage", Closer: c})
		}
	case cfg.SecretStore.Backend == config.SecretBackendRedis:
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Endpoint,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		a.closers = append(a.closers, closer{name: "redis", Closer: rdb})
		secretStorage = key_value.NewSecretStorage(rdb, cfg.SecretStore.KeyPrefix)
	case cfg.SecretStore.Backend == config.SecretBackendMemory || cfg.SecretStore.Backend == "":
		secretStorage = in_memory.NewSecretStorage()
	default:
		return nil, fmt.Errorf("unknown secret store backend %q", cfg.SecretStore.Backend)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	authHTTPClient := &http.Client{
		Transport: httpClient.Transport,
		Timeout:   cfg.Gateway.RequestTimeout,
	}

	tokens, err := usecase.NewTokenUsecase(
		usecase.TokenUsecaseDeps{
			SecretStorage: secretStorage,
			HTTPClient:    usecase.NewRetryableClient(cfg.Auth, authHTTPClient, logger.Named("auth")),
			Logger:        logger.Named("auth"),
		},
		cfg.Gateway,
		cfg.Auth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token usecase: %w", err)
	}
	a.Tokens = tokens

	gateway, err := usecase.NewGatewayUsecase(
		usecase.GatewayUsecaseDeps{
			Tokens:     tokens,
			HTTPClient: httpClient,
			Logger:     logger.Named("gateway"),
		},
		cfg.Gateway,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway usecase: %w", err)
	}
	a.Gateway = gateway

	logger.Info(
		"app created",
		zap.String("base_url", cfg.Gateway.BaseURL),
		zap.String("secret_store", cfg.SecretStore.Backend),
	)
	return a, nil
}

// NewChat starts a conversation seeded with systemPrompt, using the model
// settings from the chat config.
func (a *App) NewChat(systemPrompt string) *usecase.ChatUsecase {
	chatCfg := a.cfg.Chat
	chatCfg.SystemPrompt = systemPrompt
	chat := usecase.NewChatUsecase(
		usecase.ChatUsecaseDeps{
			Gateway:      a.Gateway,
			TokenCounter: openai_tools.Counter{},
			Logger:       a.logger.Named("chat"),
		},
		chatCfg,
	)
	a.mu.Lock()
	a.chats = append(a.chats, chat)
	a.mu.Unlock()
	return chat
}

// AttemptAutoLogin reports whether a stored identity is still accepted.
func (a *App) AttemptAutoLogin(ctx context.Context) (bool, error) {
	return a.Tokens.AttemptAutoLogin(ctx)
}

func (a *App) SignIn(ctx context.Context, idToken string) error {
	return a.Tokens.SignIn(ctx, idToken)
}

func (a *App) SignOut(ctx context.Context) error {
	return a.Tokens.SignOut(ctx)
}

// ProcessFunctionCall is a shortcut for Gateway.ProcessFunctionCall without a
// parameter schema.
func (a *App) ProcessFunctionCall(ctx context.Context, prompt string, state any) ([]model.FunctionCall, error) {
	return a.Gateway.ProcessFunctionCall(ctx, prompt, state, nil)
}

// Close stops every chat and releases the secret store.
func (a *App) Close() error {
	a.mu.Lock()
	chats := a.chats
	a.chats = nil
	a.mu.Unlock()
	for _, chat := range chats {
		chat.Close()
	}

	var err error
	for _, c := range a.closers {
		if closeErr := c.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("%s: %w", c.name, closeErr))
		}
	}
	_ = a.logger.Sync()
	return err
}

// NewLogger builds the SDK logger. Logging is off unless cfg.Enabled is set.
func NewLogger(cfg config.Log) (*zap.Logger, error) {
	if !cfg.Enabled {
		return zap.NewNop(), nil
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", cfg.Level, err)
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
