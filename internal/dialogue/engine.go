// Package dialogue generates the agent's next spoken utterance. Generation
// never fails the call: when the chat backend errors or returns nothing, the
// engine falls back to the agent's localized clarification line.
package dialogue

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/agents"
	"github.com/sawt-ai/sawt/internal/interview"
	"github.com/sawt-ai/sawt/internal/llm"
)

// Engine drives one chat completion per user turn.
type Engine struct {
	chat   llm.Client
	logger *zap.Logger
}

func NewEngine(chat llm.Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{chat: chat, logger: logger}
}

// Opening returns the agent's fixed greeting, spoken before any user turn.
func (e *Engine) Opening(agent *agents.Agent) string {
	return agent.Opening
}

// NextUtterance produces the agent's reply to the latest user message in the
// history. The reply language follows the last user message only: full-ASCII
// text gets English, anything else Egyptian Arabic. extraContext, when
// non-empty, is surfaced to the model as interview context.
func (e *Engine) NextUtterance(ctx context.Context, history []interview.Utterance, agent *agents.Agent, phase interview.Phase, extraContext string) (string, interview.Language) {
	lang := interview.LanguageArabic
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == interview.RoleUser {
			lang = interview.ClassifyReplyLanguage(history[i].Text)
			break
		}
	}

	system := buildSystemPrompt(agent, phase, lang, extraContext)
	messages := make([]llm.Message, 0, len(history))
	for _, u := range history {
		messages = append(messages, llm.Message{Role: string(u.Role), Content: u.Text})
	}

	reply, err := e.chat.Complete(ctx, system, messages)
	if err != nil {
		e.logger.Warn("utterance generation failed, using clarification",
			zap.String("agent", string(agent.ID)),
			zap.Error(err),
		)
		return agent.Clarification(lang), lang
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		e.logger.Warn("utterance generation returned empty reply, using clarification",
			zap.String("agent", string(agent.ID)),
		)
		return agent.Clarification(lang), lang
	}
	return reply, lang
}

func buildSystemPrompt(agent *agents.Agent, phase interview.Phase, lang interview.Language, extraContext string) string {
	var b strings.Builder
	b.WriteString(agent.Persona)
	b.WriteString("\n\nMODE: ")
	b.WriteString(string(phase))
	b.WriteString("\n")

	if extraContext != "" && phase == interview.PhaseStructured {
		b.WriteString("\nCANDIDATE CONTEXT:\n")
		b.WriteString(extraContext)
		b.WriteString("\n")
	}

	b.WriteString("\nLANGUAGE: ")
	b.WriteString(string(lang))
	b.WriteString("\n\nRULES:\n")
	b.WriteString("- Detect language from the LAST user message only\n")
	b.WriteString("- English → reply in English\n")
	b.WriteString("- Arabic → reply in Egyptian Arabic ONLY\n")
	for _, rule := range agent.ExtraRules {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if phase == interview.PhaseWarmUp {
		b.WriteString(agent.WarmUpRules)
	} else {
		b.WriteString(agent.StructuredRules)
	}
	b.WriteString("\n")
	return b.String()
}
