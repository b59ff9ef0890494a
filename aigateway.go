// Package aigateway is a client for a hosted LLM gateway. It signs the end
// user in with an identity token, calls the backend's function-call and
// model-call endpoints, and keeps a chat history that grows live while an
// answer streams in.
package aigateway

import (
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/app"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/usecase"
	"github.com/iamvkosarev/ai-gateway-sdk/pkg/sse"
)

type (
	Config           = config.Config
	Client           = app.App
	Option           = app.Option
	Chat             = usecase.ChatUsecase
	SecretStorage    = usecase.SecretStorage
	Stream           = sse.Stream
	Message          = model.Message
	Role             = model.Role
	ContentPart      = model.ContentPart
	ModelMetadata    = model.ModelMetadata
	Provider         = model.Provider
	FunctionCall     = model.FunctionCall
	CompletionResult = model.CompletionResult
	Usage            = model.Usage
	NetworkError     = model.NetworkError
	ServerError      = model.ServerError
)

const (
	RoleSystem    = model.RoleSystem
	RoleUser      = model.RoleUser
	RoleAssistant = model.RoleAssistant

	ProviderOpenAI     = model.ProviderOpenAI
	ProviderAnthropic  = model.ProviderAnthropic
	ProviderGoogle     = model.ProviderGoogle
	ProviderPerplexity = model.ProviderPerplexity
	ProviderDeepSeek   = model.ProviderDeepSeek
)

var (
	ErrNotAuthenticated    = model.ErrNotAuthenticated
	ErrInvalidCredential   = model.ErrInvalidCredential
	ErrInvalidResponse     = model.ErrInvalidResponse
	ErrDecoding            = model.ErrDecoding
	ErrUnsupportedProvider = model.ErrUnsupportedProvider
	ErrSendInProgress      = model.ErrSendInProgress
)

var (
	WithLogger        = app.WithLogger
	WithHTTPClient    = app.WithHTTPClient
	WithSecretStorage = app.WithSecretStorage

	OpenAI     = model.OpenAI
	Anthropic  = model.Anthropic
	Google     = model.Google
	Perplexity = model.Perplexity
	DeepSeek   = model.DeepSeek

	NewUserMessage      = model.NewUserMessage
	NewUserImageMessage = model.NewUserImageMessage
	NewAssistantMessage = model.NewAssistantMessage
	NewSystemMessage    = model.NewSystemMessage

	IsTransient = model.IsTransient
)

// New builds a client from cfg. Close it to release the secret store.
func New(cfg *Config, opts ...Option) (*Client, error) {
	return app.New(cfg, opts...)
}

// LoadConfig reads a YAML config file, overlaid by the environment and the
// given dotenv files.
func LoadConfig(cfgPath string, envFiles ...string) (*Config, error) {
	return config.LoadConfig(cfgPath, envFiles...)
}

func LoadEnv(envFiles ...string) (*Config, error) {
	return config.LoadEnv(envFiles...)
}

// DecodeFunctionParameters unmarshals the parameters of call into P.
func DecodeFunctionParameters[P any](call FunctionCall) (P, error) {
	return model.DecodeFunctionParameters[P](call)
}
