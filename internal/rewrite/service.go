package rewrite

import (
	"context"

	"github.com/starford/puffnotes/internal/llm"
)

// SystemPrompt is sent ahead of every note.
const SystemPrompt = `You are an academic note-writing assistant.
The user sends rough notes: topic names, loose bullet points, half-finished phrases, outlines or scattered thoughts. Turn them into a complete, detailed and logically organised note.
Infer what the user meant, expand terse or unclear entries, fix typos and supply missing background. If the user has started the note, continue from where they stopped and finish it.
Make the note self-contained and useful to someone meeting the topic for the first time: cover the foundations, important distinctions, examples and relevant context, without filler or repetition.
Write clean markdown with headings, subheadings, paragraphs, lists, tables and code examples where they help.
Do not ask questions or describe what you are doing. Output only the finished note.`

// Service performs one rewrite request.
type Service interface {
	Rewrite(ctx context.Context, apiKey, text string) (string, error)
}

// ChatService sends notes to a chat-completion endpoint with SystemPrompt.
type ChatService struct {
	Client *llm.Client
}

// Rewrite implements Service.
func (s ChatService) Rewrite(ctx context.Context, apiKey, text string) (string, error) {
	return s.Client.Complete(ctx, apiKey, SystemPrompt, text)
}

// KeySource yields the user's own key, or "" when none is stored.
type KeySource interface {
	UserKey(ctx context.Context) (string, error)
}

// KeyKind records which credential a request used.
type KeyKind int

const (
	UserKey KeyKind = iota
	FallbackKey
)

func (k KeyKind) String() string {
	if k == FallbackKey {
		return "fallback"
	}
	return "user"
}
