package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sawt-ai/sawt/internal/interview"
	"github.com/sawt-ai/sawt/internal/llm"
)

type fakeChat struct {
	replies []string
	errs    []error
	calls   int
	systems []string
	inputs  [][]llm.Message
}

func (f *fakeChat) Complete(_ context.Context, system string, messages []llm.Message) (string, error) {
	i := f.calls
	f.calls++
	f.systems = append(f.systems, system)
	f.inputs = append(f.inputs, messages)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var reply string
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return reply, err
}

func intakeHistory() []interview.Utterance {
	return []interview.Utterance{
		{Role: interview.RoleAssistant, Text: "What role are you hiring for?"},
		{Role: interview.RoleUser, Text: "I need a senior backend engineer"},
		{Role: interview.RoleUser, Text: "Mostly Go and Postgres"},
	}
}

func TestJobBrief_ParsesModelJSON(t *testing.T) {
	chat := &fakeChat{replies: []string{`{"role_title":"Backend Engineer","seniority":"senior","skills":["Go","Postgres"]}`}}
	e := NewExtractor(chat, nil)

	brief := e.JobBrief(context.Background(), intakeHistory())
	if brief.RoleTitle != "Backend Engineer" || brief.Seniority != "senior" {
		t.Fatalf("brief = %+v", brief)
	}
	if len(brief.Skills) != 2 {
		t.Fatalf("skills = %v", brief.Skills)
	}
}

func TestJobBrief_StripsCodeFence(t *testing.T) {
	chat := &fakeChat{replies: []string{"```json\n{\"role_title\":\"Data Analyst\"}\n```"}}
	e := NewExtractor(chat, nil)

	brief := e.JobBrief(context.Background(), intakeHistory())
	if brief.RoleTitle != "Data Analyst" {
		t.Fatalf("brief = %+v", brief)
	}
}

func TestJobBrief_FallbackConcatenatesUserTurns(t *testing.T) {
	chat := &fakeChat{replies: []string{"sorry, I cannot"}}
	e := NewExtractor(chat, nil)

	brief := e.JobBrief(context.Background(), intakeHistory())
	want := "I need a senior backend engineer Mostly Go and Postgres"
	if brief.RoleTitle != want {
		t.Fatalf("fallback role_title = %q, want %q", brief.RoleTitle, want)
	}
}

func TestJobBrief_FallbackCapsLength(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("down")}}
	e := NewExtractor(chat, nil)

	history := []interview.Utterance{{Role: interview.RoleUser, Text: strings.Repeat("x", 1000)}}
	brief := e.JobBrief(context.Background(), history)
	if len([]rune(brief.RoleTitle)) != fallbackRoleTitleChars {
		t.Fatalf("fallback length = %d", len([]rune(brief.RoleTitle)))
	}
}

func TestJobBrief_AcceptsNumericYears(t *testing.T) {
	chat := &fakeChat{replies: []string{`{"role_title":"QA","years_experience":5}`}}
	e := NewExtractor(chat, nil)

	brief := e.JobBrief(context.Background(), intakeHistory())
	if brief.YearsExperience != "5" {
		t.Fatalf("years = %q", brief.YearsExperience)
	}
}

func TestCandidateProfile_InvalidJSONKeptRaw(t *testing.T) {
	chat := &fakeChat{replies: []string{"the candidate seems nice"}}
	e := NewExtractor(chat, nil)

	profile, err := e.CandidateProfile(context.Background(), intakeHistory())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Raw != "the candidate seems nice" {
		t.Fatalf("raw = %q", profile.Raw)
	}
}

func TestCandidateProfile_BackendError(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("down")}}
	e := NewExtractor(chat, nil)
	if _, err := e.CandidateProfile(context.Background(), intakeHistory()); err == nil {
		t.Fatal("expected error from backend")
	}
}

func TestProfileFromText_ChunksAndMerges(t *testing.T) {
	chat := &fakeChat{replies: []string{
		`{"name":"Sara","skills":["Go"]}`,
		`{"current_role":"Engineer","skills":["Go","SQL"]}`,
	}}
	e := NewExtractor(chat, nil)

	text := strings.Repeat("a", maxCharsPerChunk) + strings.Repeat("b", 100)
	profile := e.ProfileFromText(context.Background(), text)
	if chat.calls != 2 {
		t.Fatalf("calls = %d, want one per chunk", chat.calls)
	}
	if profile.Name != "Sara" || profile.CurrentRole != "Engineer" {
		t.Fatalf("profile = %+v", profile)
	}
	if len(profile.Skills) != 2 {
		t.Fatalf("skills = %v, want deduplicated union", profile.Skills)
	}
}

func TestProfileFromText_ChunkCap(t *testing.T) {
	chat := &fakeChat{replies: []string{"{}", "{}", "{}", "{}", "{}", "{}"}}
	e := NewExtractor(chat, nil)

	e.ProfileFromText(context.Background(), strings.Repeat("x", maxCharsPerChunk*6))
	if chat.calls != maxChunks {
		t.Fatalf("calls = %d, want capped at %d", chat.calls, maxChunks)
	}
}

func TestProfileFromText_BadChunkSkipped(t *testing.T) {
	chat := &fakeChat{
		replies: []string{"not json", `{"name":"Sara"}`},
	}
	e := NewExtractor(chat, nil)

	text := strings.Repeat("a", maxCharsPerChunk) + "tail"
	profile := e.ProfileFromText(context.Background(), text)
	if profile.Name != "Sara" {
		t.Fatalf("profile = %+v, bad chunk must not poison the merge", profile)
	}
}

func TestMerge_ScalarOverrideAndUnionOrder(t *testing.T) {
	base := CandidateProfile{Name: "Sara", Skills: []string{"Go", "SQL"}}
	in := CandidateProfile{Name: "Sara A.", Skills: []string{"SQL", "Docker"}}

	out := base.Merge(in)
	if out.Name != "Sara A." {
		t.Fatalf("name = %q, incoming scalar must win", out.Name)
	}
	want := []string{"Go", "SQL", "Docker"}
	if len(out.Skills) != len(want) {
		t.Fatalf("skills = %v", out.Skills)
	}
	for i := range want {
		if out.Skills[i] != want[i] {
			t.Fatalf("skills = %v, want first-seen order %v", out.Skills, want)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	p := CandidateProfile{Name: "Sara", Skills: []string{"Go"}}
	once := p.Merge(p)
	twice := once.Merge(p)
	if twice.Name != "Sara" || len(twice.Skills) != 1 {
		t.Fatalf("merge not idempotent: %+v", twice)
	}
}

func TestBriefSummary(t *testing.T) {
	chat := &fakeChat{replies: []string{"Senior Go engineer, fintech, hiring soon."}}
	e := NewExtractor(chat, nil)

	got := e.BriefSummary(context.Background(), intakeHistory())
	if got != "Senior Go engineer, fintech, hiring soon." {
		t.Fatalf("summary = %q", got)
	}
	if len(chat.inputs) != 1 || !strings.Contains(chat.inputs[0][0].Content, "- I need a senior backend engineer") {
		t.Fatalf("summary input = %+v, want bulleted user turns", chat.inputs)
	}
}

func TestBriefSummary_Fallbacks(t *testing.T) {
	e := NewExtractor(&fakeChat{errs: []error{errors.New("down")}}, nil)
	if got := e.BriefSummary(context.Background(), intakeHistory()); got != "Summary unavailable." {
		t.Fatalf("summary = %q", got)
	}
	e = NewExtractor(&fakeChat{}, nil)
	if got := e.BriefSummary(context.Background(), nil); got != "No conversation recorded." {
		t.Fatalf("summary = %q", got)
	}
}

func TestCVSummary(t *testing.T) {
	chat := &fakeChat{replies: []string{"  ملخص مهني قصير  "}}
	e := NewExtractor(chat, nil)

	got := e.CVSummary(context.Background(), CandidateProfile{Name: "Sara", Skills: []string{"Go"}})
	if got != "ملخص مهني قصير" {
		t.Fatalf("summary = %q", got)
	}
	// The model sees the structured profile, not raw CV text.
	if len(chat.inputs) != 1 || !strings.Contains(chat.inputs[0][0].Content, `"Sara"`) {
		t.Fatalf("input = %+v", chat.inputs)
	}
}

func TestCVSummary_ErrorYieldsEmpty(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("down")}}
	e := NewExtractor(chat, nil)

	if got := e.CVSummary(context.Background(), CandidateProfile{}); got != "" {
		t.Fatalf("summary = %q, want empty on failure", got)
	}
}

func TestTranscriptDigest(t *testing.T) {
	got := TranscriptDigest(intakeHistory())
	want := "• I need a senior backend engineer\n• Mostly Go and Postgres"
	if got != want {
		t.Fatalf("digest = %q", got)
	}
	if TranscriptDigest(nil) != "No conversation recorded." {
		t.Fatal("empty digest fallback missing")
	}
}
