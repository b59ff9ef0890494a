package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FunctionCall is one function the backend extracted from a prompt.
type FunctionCall struct {
	Name               string          `json:"function"`
	Parameters         json.RawMessage `json:"parameters,omitempty"`
	ColloquialResponse string          `json:"colloquial_response,omitempty"`
}

// DecodeFunctionParameters unmarshals the parameters of call into P. A call
// without parameters yields the zero P.
func DecodeFunctionParameters[P any](call FunctionCall) (P, error) {
	var params P
	if len(call.Parameters) == 0 || string(call.Parameters) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(call.Parameters, &params); err != nil {
		return params, fmt.Errorf("failed to decode parameters of %s: %w", call.Name, errors.Join(ErrDecoding, err))
	}
	return params, nil
}
