// Package llm provides chat-completion clients for the dialogue and
// extraction stages. Two backends are supported: any OpenAI-compatible
// completions endpoint, and Gemini via the Google GenAI SDK.
package llm

import "context"

// Message is one turn of role-tagged dialogue history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates a single text reply for a system instruction plus ordered
// message history. Implementations must return an error rather than an empty
// reply on backend failure; callers decide the fallback.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}
