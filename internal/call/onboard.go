package call

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/extract"
)

// CVExtractor distills free-form CV text into a structured profile and a
// human-readable summary.
type CVExtractor interface {
	ProfileFromText(ctx context.Context, text string) extract.CandidateProfile
	CVSummary(ctx context.Context, profile extract.CandidateProfile) string
}

// CandidateWriter upserts onboarded candidates, keyed by email.
type CandidateWriter interface {
	OnboardCandidate(ctx context.Context, name, email, cvText string, profile extract.CandidateProfile, summary string) (string, error)
}

// OnboardRequest registers one candidate from their CV text.
type OnboardRequest struct {
	Name   string
	Email  string
	CVText string
}

// OnboardResult is the registered candidate plus what was extracted.
type OnboardResult struct {
	CandidateID string
	Profile     extract.CandidateProfile
	Summary     string
}

// OnboardService turns an uploaded CV into a candidate record: chunked
// profile extraction, summary generation, and an email-keyed upsert.
type OnboardService struct {
	extractor CVExtractor
	persist   CandidateWriter
	logger    *zap.Logger
}

// NewOnboardService wires the onboarding flow. persist may be nil; the
// candidate is then extracted but not stored.
func NewOnboardService(extractor CVExtractor, persist CandidateWriter, logger *zap.Logger) *OnboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardService{extractor: extractor, persist: persist, logger: logger}
}

// Onboard runs the full flow for one CV.
func (s *OnboardService) Onboard(ctx context.Context, req OnboardRequest) (OnboardResult, error) {
	if req.Name == "" || req.Email == "" || strings.TrimSpace(req.CVText) == "" {
		return OnboardResult{}, fmt.Errorf("call: onboarding needs name, email and cv text")
	}

	profile := s.extractor.ProfileFromText(ctx, req.CVText)
	summary := s.extractor.CVSummary(ctx, profile)

	res := OnboardResult{Profile: profile, Summary: summary}
	if s.persist == nil {
		return res, nil
	}

	id, err := s.persist.OnboardCandidate(ctx, req.Name, req.Email, req.CVText, profile, summary)
	if err != nil {
		return OnboardResult{}, fmt.Errorf("call: store onboarded candidate: %w", err)
	}
	res.CandidateID = id

	s.logger.Info("candidate onboarded",
		zap.String("candidate", id),
		zap.Int("cv_chars", len(req.CVText)),
	)
	return res, nil
}
