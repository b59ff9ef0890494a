package model

import "github.com/sashabaranov/go-openai"

type Role string

const (
	RoleSystem    = Role(openai.ChatMessageRoleSystem)
	RoleUser      = Role(openai.ChatMessageRoleUser)
	RoleAssistant = Role(openai.ChatMessageRoleAssistant)
)

func ParseRole(s string) Role {
	switch s {
	case "system":
		return RoleSystem
	case "assistant":
		return RoleAssistant
	default:
		return RoleUser
	}
}
