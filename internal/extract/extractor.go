package extract

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/interview"
	"github.com/sawt-ai/sawt/internal/llm"
)

// CV text is chunked before extraction so one oversized upload cannot burn
// through tokens.
const (
	maxCharsPerChunk = 6000
	maxChunks        = 4
)

// fallbackRoleTitleChars caps the concatenated-transcript fallback brief.
const fallbackRoleTitleChars = 300

const jobBriefPrompt = `Return ONLY valid JSON with:
role_title,
seniority,
years_experience,
skills,
tools,
industry,
language
If info is missing, leave it empty.
Do not add text before or after the JSON.`

const candidateProfilePrompt = `Extract a structured candidate profile from the conversation.
Return ONLY valid JSON with these fields:
name, email, mobile_number, current_role, years_experience,
skills, preferred_roles, salary_expectation, availability, language.
If info is missing, leave it empty.
Do not add text before or after the JSON.`

const cvProfilePrompt = `You extract structured CV data.
Return ONLY valid JSON with:
name (string|null)
current_role (string|null)
years_experience (number|null)
skills (string[])
previous_roles (string[])
industries (string[])
education (string[])`

const cvSummaryPrompt = `Write a short professional CV summary
in Egyptian Arabic with a friendly HR tone.`

const briefSummaryPrompt = `You are a senior recruitment consultant.
Summarize the hiring request clearly for a recruiter dashboard.

Rules:
- Professional tone
- Clear and concise
- One short paragraph
- Focus on role, seniority, skills, and hiring conditions`

// Extractor runs the structured-extraction prompts against a chat backend.
type Extractor struct {
	chat   llm.Client
	logger *zap.Logger
}

func NewExtractor(chat llm.Client, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{chat: chat, logger: logger}
}

// JobBrief extracts the hiring request from an intake conversation. It never
// returns an empty brief: when the model yields nothing usable, the fallback
// carries the concatenated user turns as the role title so the dashboard
// always has something to show.
func (e *Extractor) JobBrief(ctx context.Context, history []interview.Utterance) JobBrief {
	raw, err := e.chat.Complete(ctx, jobBriefPrompt, toMessages(history))
	if err != nil {
		e.logger.Warn("job brief extraction failed", zap.Error(err))
		return fallbackBrief(history)
	}

	var brief JobBrief
	if err := json.Unmarshal([]byte(extractJSON(raw)), &brief); err != nil || brief.Empty() {
		return fallbackBrief(history)
	}
	return brief
}

func fallbackBrief(history []interview.Utterance) JobBrief {
	var parts []string
	for _, u := range history {
		if u.Role == interview.RoleUser {
			parts = append(parts, u.Text)
		}
	}
	title := strings.Join(parts, " ")
	if r := []rune(title); len(r) > fallbackRoleTitleChars {
		title = string(r[:fallbackRoleTitleChars])
	}
	return JobBrief{RoleTitle: title}
}

// CandidateProfile extracts the structured profile from a screening
// conversation. Output that is not valid JSON is preserved verbatim in the
// Raw field instead of being dropped.
func (e *Extractor) CandidateProfile(ctx context.Context, history []interview.Utterance) (CandidateProfile, error) {
	raw, err := e.chat.Complete(ctx, candidateProfilePrompt, toMessages(history))
	if err != nil {
		return CandidateProfile{}, err
	}

	var profile CandidateProfile
	if err := json.Unmarshal([]byte(extractJSON(raw)), &profile); err != nil {
		return CandidateProfile{Raw: raw}, nil
	}
	return profile, nil
}

// ProfileFromText extracts a profile from free-form CV text. The text is
// split into bounded chunks, each extracted independently and merged. A
// chunk that fails to extract is skipped rather than failing the whole CV.
func (e *Extractor) ProfileFromText(ctx context.Context, text string) CandidateProfile {
	var final CandidateProfile
	for i, chunk := range chunkText(text) {
		raw, err := e.chat.Complete(ctx, cvProfilePrompt, []llm.Message{{Role: "user", Content: chunk}})
		if err != nil {
			e.logger.Warn("cv chunk extraction failed", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		var partial CandidateProfile
		if err := json.Unmarshal([]byte(extractJSON(raw)), &partial); err != nil {
			e.logger.Warn("cv chunk returned invalid json", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		final = final.Merge(partial)
	}
	return final
}

// CVSummary writes the short human-readable summary stored alongside an
// onboarded CV. Failures degrade to an empty summary, never an error.
func (e *Extractor) CVSummary(ctx context.Context, profile CandidateProfile) string {
	payload, err := json.Marshal(profile)
	if err != nil {
		return ""
	}
	summary, err := e.chat.Complete(ctx, cvSummaryPrompt, []llm.Message{{Role: "user", Content: string(payload)}})
	if err != nil {
		e.logger.Warn("cv summary failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

// BriefSummary writes the one-paragraph hiring summary shown on the
// recruiter dashboard after the intake call ends.
func (e *Extractor) BriefSummary(ctx context.Context, history []interview.Utterance) string {
	input := userBullets(history, "- ")
	if input == "" {
		return "No conversation recorded."
	}
	summary, err := e.chat.Complete(ctx, briefSummaryPrompt, []llm.Message{{Role: "user", Content: input}})
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			e.logger.Warn("brief summary failed", zap.Error(err))
		}
		return "Summary unavailable."
	}
	return strings.TrimSpace(summary)
}

// TranscriptDigest is the plain bullet list of what the caller said, used
// when a call ends without structured summarization.
func TranscriptDigest(history []interview.Utterance) string {
	digest := userBullets(history, "• ")
	if digest == "" {
		return "No conversation recorded."
	}
	return digest
}

func userBullets(history []interview.Utterance, prefix string) string {
	var lines []string
	for _, u := range history {
		if u.Role == interview.RoleUser {
			lines = append(lines, prefix+u.Text)
		}
	}
	return strings.Join(lines, "\n")
}

func toMessages(history []interview.Utterance) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, u := range history {
		out = append(out, llm.Message{Role: string(u.Role), Content: u.Text})
	}
	return out
}

func chunkText(text string) []string {
	var chunks []string
	r := []rune(text)
	for start := 0; start < len(r) && len(chunks) < maxChunks; start += maxCharsPerChunk {
		end := start + maxCharsPerChunk
		if end > len(r) {
			end = len(r)
		}
		chunks = append(chunks, string(r[start:end]))
	}
	return chunks
}

// extractJSON strips markdown code fences some models wrap around JSON
// output.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
