package openai_tools

import (
	"fmt"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
	"sync"
)

const (
	tokensPerMessage = 3
	tokensPerName    = 1
	tokensPerReply   = 3
)

var encodings sync.Map

// CountToken estimates the prompt tokens messages cost on model. Models
// tiktoken does not know are counted with cl100k_base.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	tkm, err := encodingFor(model)
	if err != nil {
		return 0, err
	}
	numTokens := 0
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(message.Content, nil, nil))
		numTokens += len(tkm.Encode(message.Role, nil, nil))
		for _, part := range message.MultiContent {
			numTokens += len(tkm.Encode(part.Text, nil, nil))
		}
		if message.Name != "" {
			numTokens += tokensPerName
			numTokens += len(tkm.Encode(message.Name, nil, nil))
		}
	}
	return numTokens + tokensPerReply, nil
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	if tkm, ok := encodings.Load(model); ok {
		return tkm.(*tiktoken.Tiktoken), nil
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
		}
	}
	encodings.Store(model, tkm)
	return tkm, nil
}

// Counter exposes CountToken as a method for callers that take a counter
// dependency.
type Counter struct{}

func (Counter) CountTokens(messages []openai.ChatCompletionMessage, model string) (int, error) {
	return CountToken(messages, model)
}
