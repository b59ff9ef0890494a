package model

import (
	"github.com/samber/lo"
	"slices"
)

type Provider string

const (
	ProviderOpenAI     = Provider("openai")
	ProviderAnthropic  = Provider("anthropic")
	ProviderGoogle     = Provider("google")
	ProviderPerplexity = Provider("perplexity")
	ProviderDeepSeek   = Provider("deepseek")
)

var streamingProviders = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

func ParseProvider(s string) Provider {
	return Provider(s)
}

type Capability string

const (
	CapabilityChat  = Capability("chat")
	CapabilityAudio = Capability("audio")
	CapabilityImage = Capability("image")
	CapabilityVideo = Capability("video")
)

const (
	ModelGPT4o          = "chatgpt-4o-latest"
	ModelGPT4oMini      = "gpt-4o-mini"
	ModelClaudeSonnet   = "claude-3-5-sonnet-latest"
	ModelClaudeHaiku    = "claude-3-5-haiku-latest"
	ModelClaudeOpus     = "claude-3-5-opus-latest"
	ModelGeminiFlash    = "gemini-2.0-flash"
	ModelSonar          = "sonar"
	ModelSonarPro       = "sonar-pro"
	ModelSonarReasoning = "sonar-reasoning"
	ModelDeepSeekChat   = "deepseek-chat"
	ModelDeepSeekReason = "deepseek-reasoner"
)

// ModelMetadata selects the backend model and its call parameters. It is a
// value: the With* methods return modified copies and never touch the
// receiver, so a copy captured by a running stream stays stable.
type ModelMetadata struct {
	Provider     Provider
	Model        string
	Capabilities []Capability
	temperature  *float64
	maxTokens    *int
}

func NewModelMetadata(provider Provider, modelName string) ModelMetadata {
	return ModelMetadata{
		Provider:     provider,
		Model:        modelName,
		Capabilities: []Capability{CapabilityChat},
	}
}

func OpenAI(modelName string) ModelMetadata {
	return NewModelMetadata(ProviderOpenAI, modelName)
}

func Anthropic(modelName string) ModelMetadata {
	return NewModelMetadata(ProviderAnthropic, modelName)
}

func Google(modelName string) ModelMetadata {
	return NewModelMetadata(ProviderGoogle, modelName)
}

func Perplexity(modelName string) ModelMetadata {
	return NewModelMetadata(ProviderPerplexity, modelName)
}

func DeepSeek(modelName string) ModelMetadata {
	return NewModelMetadata(ProviderDeepSeek, modelName)
}

func (m ModelMetadata) WithTemperature(temperature float64) ModelMetadata {
	m.temperature = &temperature
	return m
}

func (m ModelMetadata) WithMaxTokens(maxTokens int) ModelMetadata {
	m.maxTokens = &maxTokens
	return m
}

func (m ModelMetadata) Temperature() (float64, bool) {
	if m.temperature == nil {
		return 0, false
	}
	return *m.temperature, true
}

func (m ModelMetadata) MaxTokens() (int, bool) {
	if m.maxTokens == nil {
		return 0, false
	}
	return *m.maxTokens, true
}

func (m ModelMetadata) SupportsStreaming() bool {
	return lo.Contains(streamingProviders, m.Provider)
}

func (m ModelMetadata) Equal(other ModelMetadata) bool {
	t1, ok1 := m.Temperature()
	t2, ok2 := other.Temperature()
	n1, ok3 := m.MaxTokens()
	n2, ok4 := other.MaxTokens()
	return m.Provider == other.Provider &&
		m.Model == other.Model &&
		slices.Equal(m.Capabilities, other.Capabilities) &&
		ok1 == ok2 && t1 == t2 &&
		ok3 == ok4 && n1 == n2
}
