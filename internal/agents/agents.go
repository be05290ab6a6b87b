// Package agents defines the interview agent personas and their tunables:
// warm-up and extraction thresholds, voices, opening lines and localized
// clarification fallbacks.
package agents

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawt-ai/sawt/internal/interview"
)

// ID selects one of the built-in agents.
type ID string

const (
	// Recruiter runs the job-intake interview with a hiring manager.
	Recruiter ID = "recruiter"
	// Candidate runs the screening interview with a candidate.
	Candidate ID = "candidate"
)

//go:embed prompts/recruiter.md
var recruiterPersona string

//go:embed prompts/candidate.md
var candidatePersona string

// Agent is one interview persona plus its loop tunables.
type Agent struct {
	ID              ID
	Name            string
	Persona         string
	WarmUpTurns     int     // user turns before WARM_UP gives way to STRUCTURED
	ExtractionTurns int     // user turns before structured extraction may run
	Voice           string  // synthesizer voice identifier
	SpeechRate      float64 // synthesizer rate multiplier
	Opening         string  // fixed greeting spoken before any user turn
	ClarifyEN       string  // fallback line when generation yields nothing
	ClarifyAR       string
	ExtraRules      []string // agent-specific lines appended to the shared rules
	WarmUpRules     string   // phase guidance while warming up
	StructuredRules string   // phase guidance once structured
}

// Clarification returns the localized fallback line for the detected
// reply language.
func (a *Agent) Clarification(lang interview.Language) string {
	if lang == interview.LanguageEnglish {
		return a.ClarifyEN
	}
	return a.ClarifyAR
}

const recruiterOpening = `أهلاً، أنا أسامة.
هساعدك نحدد الوظيفة اللي محتاج تعيّن عليها
ونظبط كل التفاصيل خطوة خطوة.
خلينا نبدأ — إيه المنصب اللي بتفكر فيه؟`

const candidateOpening = `Hi أنا تمارا، مسؤولة HR.
حابّة أتكلم معاك شوية عن خبرتك
ونفهم مع بعض إيه الخطوة الجاية المناسبة ليك.`

// Builtin returns the two built-in agents with their default tunables.
func Builtin() map[ID]*Agent {
	return map[ID]*Agent{
		Recruiter: {
			ID:              Recruiter,
			Name:            "Osama",
			Persona:         recruiterPersona,
			WarmUpTurns:     2,
			ExtractionTurns: 4,
			Voice:           "alloy",
			SpeechRate:      1.15,
			Opening:         recruiterOpening,
			ClarifyEN:       "Can you tell me more?",
			ClarifyAR:       "ممكن توضّحلي أكتر؟",
			ExtraRules: []string{
				"Never use Gulf Arabic",
				"Use a professional Egyptian HR tone",
				"Ask ONE question only",
			},
			WarmUpRules: `WARM UP:
- Be conversational
- Ask open-ended questions
- Let the recruiter explain freely`,
			StructuredRules: `STRUCTURED:
- Be concise and specific
- Focus on role clarity, seniority, skills`,
		},
		Candidate: {
			ID:              Candidate,
			Name:            "Tamara",
			Persona:         candidatePersona,
			WarmUpTurns:     3,
			ExtractionTurns: 4,
			Voice:           "marin",
			SpeechRate:      1.0,
			Opening:         candidateOpening,
			ClarifyEN:       "Could you tell me more?",
			ClarifyAR:       "ممكن تحكيلي أكتر؟",
			WarmUpRules: `WARM UP:
- Be friendly and conversational
- Ask ONE open-ended question
- Let the candidate talk freely`,
			StructuredRules: `STRUCTURED:
- Ask ONE clear HR question
- Keep reply under 25 words`,
		},
	}
}

// Registry resolves agent IDs, optionally with YAML overrides applied.
type Registry struct {
	agents map[ID]*Agent
}

// NewRegistry returns a registry of the built-in agents.
func NewRegistry() *Registry {
	return &Registry{agents: Builtin()}
}

// Get resolves an agent by its route identifier.
func (r *Registry) Get(id string) (*Agent, error) {
	a, ok := r.agents[ID(id)]
	if !ok {
		return nil, fmt.Errorf("agents: unknown agent %q", id)
	}
	return a, nil
}

// override carries the per-agent fields an operator may tune without a
// rebuild. Zero values leave the built-in default in place.
type override struct {
	WarmUpTurns     int     `yaml:"warm-up-turns"`
	ExtractionTurns int     `yaml:"extraction-turns"`
	Voice           string  `yaml:"voice"`
	SpeechRate      float64 `yaml:"speech-rate"`
	Opening         string  `yaml:"opening"`
}

type overridesFile struct {
	Recruiter *override `yaml:"recruiter"`
	Candidate *override `yaml:"candidate"`
}

// LoadOverrides applies a YAML overrides document to the registry.
func (r *Registry) LoadOverrides(src io.Reader) error {
	raw, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("agents: read overrides: %w", err)
	}
	var doc overridesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("agents: parse overrides: %w", err)
	}
	apply(r.agents[Recruiter], doc.Recruiter)
	apply(r.agents[Candidate], doc.Candidate)
	return nil
}

// LoadOverridesFile applies overrides from a YAML file on disk.
func (r *Registry) LoadOverridesFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("agents: open overrides: %w", err)
	}
	defer f.Close()
	return r.LoadOverrides(f)
}

func apply(a *Agent, o *override) {
	if a == nil || o == nil {
		return
	}
	if o.WarmUpTurns > 0 {
		a.WarmUpTurns = o.WarmUpTurns
	}
	if o.ExtractionTurns > 0 {
		a.ExtractionTurns = o.ExtractionTurns
	}
	if o.Voice != "" {
		a.Voice = o.Voice
	}
	if o.SpeechRate > 0 {
		a.SpeechRate = o.SpeechRate
	}
	if o.Opening != "" {
		a.Opening = o.Opening
	}
}
