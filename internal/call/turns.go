// Package call coordinates one interview call: the per-turn pipeline on the
// server side and the client-side loop state machine.
package call

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/agents"
	"github.com/sawt-ai/sawt/internal/extract"
	"github.com/sawt-ai/sawt/internal/interview"
	"github.com/sawt-ai/sawt/internal/logger"
)

// minTranscriptChars is the floor below which a transcript is treated as
// noise and the turn is skipped without touching the session.
const minTranscriptChars = 2

// Transcriber converts a finalized clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip []byte) (string, error)
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// Dialog produces the agent's spoken lines.
type Dialog interface {
	Opening(a *agents.Agent) string
	NextUtterance(ctx context.Context, history []interview.Utterance, a *agents.Agent, phase interview.Phase, extraContext string) (string, interview.Language)
}

// Extractor distills a conversation into structured records.
type Extractor interface {
	JobBrief(ctx context.Context, history []interview.Utterance) extract.JobBrief
	CandidateProfile(ctx context.Context, history []interview.Utterance) (extract.CandidateProfile, error)
	BriefSummary(ctx context.Context, history []interview.Utterance) string
}

// Persister writes extracted records and call artifacts to long-lived
// storage. All writes are best-effort from the loop's point of view.
type Persister interface {
	SaveJobBrief(ctx context.Context, jobID string, brief extract.JobBrief) error
	FinalizeJobBrief(ctx context.Context, jobID, summary string) error
	CreateIntakeTask(ctx context.Context, jobID string) error
	EnsureCandidate(ctx context.Context) (string, error)
	SaveCandidateProfile(ctx context.Context, candidateID string, profile extract.CandidateProfile) error
	CandidateContext(ctx context.Context, candidateID string) (string, error)
	ArchiveClip(ctx context.Context, sessionKey string, clip []byte) error
}

// Archiver keeps a local transcript record per completed call.
type Archiver interface {
	SaveCall(ctx context.Context, key, agent string, history []interview.Utterance, summary string) error
}

// Event is one observable moment in a call, pushed to the live session feed.
type Event struct {
	Session string `json:"session"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
}

// Publisher fans events out to feed subscribers. Publishing must not block
// the turn.
type Publisher interface {
	Publish(ev Event)
}

// TurnRequest is one client submission: either the first contact of a call
// (no clip) or a finalized speech clip.
type TurnRequest struct {
	Agent       string
	SessionKey  string
	JobID       string
	CandidateID string
	Clip        []byte
	// TextOnly skips synthesis; the reply comes back as text. Used by the
	// phone entry point, which speaks via its own telephony layer.
	TextOnly bool
}

// TurnResult is what the client plays or, for acknowledged skips, ignores.
type TurnResult struct {
	// Ack is true when the turn was skipped (no clip on a live session, or
	// a transcript too short to count) or when synthesis failed and only
	// text is available.
	Ack        bool
	Audio      []byte
	SpokenText string
	UserText   string
}

// EndRequest closes a call and asks for its summary.
type EndRequest struct {
	Agent      string
	SessionKey string
	JobID      string
}

// EndResult carries the call summary shown after hang-up.
type EndResult struct {
	Summary string
}

// TurnService runs the server side of the interview loop: transcription,
// memory, dialogue, deferred extraction, synthesis.
type TurnService struct {
	store     *interview.Store
	registry  *agents.Registry
	stt       Transcriber
	dialog    Dialog
	extractor Extractor
	tts       Synthesizer
	persist   Persister
	archive   Archiver
	events    Publisher
	logger    *zap.Logger
}

// TurnServiceConfig wires the service's collaborators. persist, archive and
// events may be nil; the corresponding side effects are skipped.
type TurnServiceConfig struct {
	Store     *interview.Store
	Registry  *agents.Registry
	STT       Transcriber
	Dialog    Dialog
	Extractor Extractor
	TTS       Synthesizer
	Persist   Persister
	Archive   Archiver
	Events    Publisher
	Logger    *zap.Logger
}

func NewTurnService(cfg TurnServiceConfig) *TurnService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &TurnService{
		store:     cfg.Store,
		registry:  cfg.Registry,
		stt:       cfg.STT,
		dialog:    cfg.Dialog,
		extractor: cfg.Extractor,
		tts:       cfg.TTS,
		persist:   cfg.Persist,
		archive:   cfg.Archive,
		events:    cfg.Events,
		logger:    log,
	}
}

// HandleTurn executes one turn. Turns for the same session key are
// serialized by the session store; a turn holds its session for the whole
// pipeline.
func (s *TurnService) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	agent, err := s.registry.Get(req.Agent)
	if err != nil {
		return TurnResult{}, err
	}

	sess, release := s.store.Begin(req.SessionKey)
	defer release()

	// First contact: the agent speaks its fixed opening before any user turn.
	if len(req.Clip) == 0 && sess.Empty() {
		opening := s.dialog.Opening(agent)
		sess.Append(interview.Utterance{Role: interview.RoleAssistant, Text: opening})
		s.publish(req.SessionKey, "greeting", opening)
		return s.speak(ctx, agent, opening, "", req.TextOnly), nil
	}

	// No clip on a live session: acknowledged skip, no mutation.
	if len(req.Clip) == 0 {
		return TurnResult{Ack: true}, nil
	}

	text, err := s.stt.Transcribe(ctx, req.Clip)
	if err != nil {
		s.logger.Warn("transcription failed",
			zap.String("session", req.SessionKey),
			zap.Error(err),
		)
		return TurnResult{}, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minTranscriptChars {
		return TurnResult{Ack: true}, nil
	}

	sess.Append(interview.Utterance{Role: interview.RoleUser, Text: text})
	s.publish(req.SessionKey, "user", text)
	s.logger.Info("user turn",
		zap.String("session", req.SessionKey),
		zap.String("agent", string(agent.ID)),
		zap.Int("user_turns", sess.UserTurnCount()),
		zap.String("text", logger.TruncateForLog(text, 120)),
	)

	s.archiveClip(ctx, req.SessionKey, req.Clip)

	phase := sess.Phase(agent.WarmUpTurns)
	candidateID := s.ensureCandidate(ctx, agent, sess, req.CandidateID)
	extraContext := s.candidateContext(ctx, agent, phase, candidateID)

	reply, _ := s.dialog.NextUtterance(ctx, sess.Utterances(), agent, phase, extraContext)
	sess.Append(interview.Utterance{Role: interview.RoleAssistant, Text: reply})
	s.publish(req.SessionKey, "assistant", reply)

	s.maybeExtract(ctx, agent, sess, req.JobID, candidateID, phase)

	res := s.speak(ctx, agent, reply, text, req.TextOnly)
	return res, nil
}

// speak synthesizes the reply unless the caller asked for text only. A
// synthesis failure degrades to a text-only acknowledgement; the
// conversation has already advanced.
func (s *TurnService) speak(ctx context.Context, agent *agents.Agent, reply, userText string, textOnly bool) TurnResult {
	res := TurnResult{SpokenText: reply, UserText: userText}
	if textOnly {
		res.Ack = true
		return res
	}
	audio, err := s.tts.Synthesize(ctx, reply, agent.Voice, agent.SpeechRate)
	if err != nil {
		s.logger.Warn("synthesis failed, returning text only",
			zap.String("agent", string(agent.ID)),
			zap.Error(err),
		)
		res.Ack = true
		return res
	}
	res.Audio = audio
	return res
}

// ensureCandidate creates the candidate row once the screening conversation
// has taken hold (two utterances), deferring the write past drive-by
// connects.
func (s *TurnService) ensureCandidate(ctx context.Context, agent *agents.Agent, sess *interview.Session, requestID string) string {
	if agent.ID != agents.Candidate {
		return ""
	}
	if requestID != "" {
		sess.SetCandidateID(requestID)
		return requestID
	}
	if id := sess.CandidateID(); id != "" {
		return id
	}
	if s.persist == nil || sess.Len() < 2 {
		return ""
	}
	id, err := s.persist.EnsureCandidate(ctx)
	if err != nil {
		s.logger.Warn("candidate creation failed", zap.String("session", sess.Key()), zap.Error(err))
		return ""
	}
	sess.SetCandidateID(id)
	return id
}

func (s *TurnService) candidateContext(ctx context.Context, agent *agents.Agent, phase interview.Phase, candidateID string) string {
	if agent.ID != agents.Candidate || phase != interview.PhaseStructured || candidateID == "" || s.persist == nil {
		return ""
	}
	cc, err := s.persist.CandidateContext(ctx, candidateID)
	if err != nil {
		s.logger.Warn("candidate context load failed", zap.String("candidate", candidateID), zap.Error(err))
		return ""
	}
	return cc
}

// maybeExtract runs the deferred extraction gates. Recruiter briefs extract
// exactly once per call, the first time the turn count reaches the
// threshold; candidate profiles re-extract every qualifying turn so later
// answers refine the row.
func (s *TurnService) maybeExtract(ctx context.Context, agent *agents.Agent, sess *interview.Session, jobID, candidateID string, phase interview.Phase) {
	if s.persist == nil {
		return
	}
	switch agent.ID {
	case agents.Recruiter:
		if jobID == "" || sess.UserTurnCount() < agent.ExtractionTurns || !sess.MarkBriefExtracted() {
			return
		}
		brief := s.extractor.JobBrief(ctx, sess.Utterances())
		if err := s.persist.SaveJobBrief(ctx, jobID, brief); err != nil {
			s.logger.Warn("job brief save failed", zap.String("job", jobID), zap.Error(err))
			return
		}
		s.publish(sess.Key(), "brief_extracted", brief.RoleTitle)
	case agents.Candidate:
		if phase != interview.PhaseStructured || candidateID == "" || sess.Len() < agent.ExtractionTurns {
			return
		}
		profile, err := s.extractor.CandidateProfile(ctx, sess.Utterances())
		if err != nil {
			s.logger.Warn("profile extraction failed", zap.String("candidate", candidateID), zap.Error(err))
			return
		}
		if err := s.persist.SaveCandidateProfile(ctx, candidateID, profile); err != nil {
			s.logger.Warn("profile save failed", zap.String("candidate", candidateID), zap.Error(err))
			return
		}
		s.publish(sess.Key(), "profile_saved", candidateID)
	}
}

// EndCall closes the session, produces the call summary, and finalizes
// persisted state. It is safe to call for a session that never started.
func (s *TurnService) EndCall(ctx context.Context, req EndRequest) (EndResult, error) {
	agent, err := s.registry.Get(req.Agent)
	if err != nil {
		return EndResult{}, err
	}

	sess := s.store.End(req.SessionKey)
	if sess == nil || sess.Empty() {
		return EndResult{Summary: "No conversation recorded."}, nil
	}
	history := sess.Utterances()

	var summary string
	switch agent.ID {
	case agents.Recruiter:
		summary = s.extractor.BriefSummary(ctx, history)
		if s.persist != nil && req.JobID != "" {
			if err := s.persist.FinalizeJobBrief(ctx, req.JobID, summary); err != nil {
				s.logger.Warn("brief finalize failed", zap.String("job", req.JobID), zap.Error(err))
			}
			if err := s.persist.CreateIntakeTask(ctx, req.JobID); err != nil {
				s.logger.Warn("intake task creation failed", zap.String("job", req.JobID), zap.Error(err))
			}
		}
	default:
		summary = extract.TranscriptDigest(history)
	}

	if s.archive != nil {
		if err := s.archive.SaveCall(ctx, req.SessionKey, string(agent.ID), history, summary); err != nil {
			s.logger.Warn("call archive failed", zap.String("session", req.SessionKey), zap.Error(err))
		}
	}
	s.publish(req.SessionKey, "ended", "")
	return EndResult{Summary: summary}, nil
}

func (s *TurnService) archiveClip(ctx context.Context, key string, clip []byte) {
	if s.persist == nil {
		return
	}
	if err := s.persist.ArchiveClip(ctx, key, clip); err != nil {
		s.logger.Debug("clip archive failed", zap.String("session", key), zap.Error(err))
	}
}

func (s *TurnService) publish(session, kind, detail string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{Session: session, Kind: kind, Detail: detail})
}
