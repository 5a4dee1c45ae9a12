package provider

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Model   string `json:"model"`
	Content string `json:"content"`
}

// Client is the minimal completion surface consumed by the orchestrator
// and workers. Output is untrusted free text; callers parse and validate.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Provider is a configured backend exposing one or more models.
type Provider interface {
	ID() string
	Client
}
