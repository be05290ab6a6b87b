// Package persist writes extracted interview records to Supabase: job briefs
// and statuses on the jobs table, candidate rows and profiles, review tasks,
// and raw call clips in storage.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/extract"
)

const aiVersion = "intake-v1"

// Config selects the Supabase project and the clip bucket.
type Config struct {
	URL            string
	ServiceRoleKey string
	ClipBucket     string
}

// Store is the Supabase-backed persistence layer.
type Store struct {
	client *supabase.Client
	bucket string
	logger *zap.Logger
}

// New connects to the Supabase project.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("persist: supabase url and service role key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("persist: create supabase client: %w", err)
	}
	bucket := cfg.ClipBucket
	if bucket == "" {
		bucket = "call-clips"
	}
	return &Store{client: client, bucket: bucket, logger: logger}, nil
}

// SaveJobBrief writes the extracted brief and moves the job into
// shortlisting.
func (s *Store) SaveJobBrief(ctx context.Context, jobID string, brief extract.JobBrief) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From("jobs").
		Update(map[string]any{
			"brief_final": brief,
			"status":      "shortlisting",
		}, "", "").
		Eq("id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("persist: save job brief: %w", err)
	}
	return nil
}

// FinalizeJobBrief stores the human-readable intake summary and marks the
// job completed.
func (s *Store) FinalizeJobBrief(ctx context.Context, jobID, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From("jobs").
		Update(map[string]any{
			"brief_final": map[string]any{
				"summary": summary,
				"source":  "intake-call",
			},
			"status":         "intake_completed",
			"last_extracted": time.Now().UTC().Format(time.RFC3339),
			"ai_version":     aiVersion,
		}, "", "").
		Eq("id", jobID).
		Execute()
	if err != nil {
		return fmt.Errorf("persist: finalize job brief: %w", err)
	}
	return nil
}

// CreateIntakeTask queues the post-call review task for the job's recruiter.
func (s *Store) CreateIntakeTask(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var job struct {
		RecruiterID string `json:"recruiter_id"`
	}
	_, err := s.client.From("jobs").
		Select("recruiter_id", "", false).
		Eq("id", jobID).
		Single().
		ExecuteTo(&job)
	if err != nil {
		return fmt.Errorf("persist: load job recruiter: %w", err)
	}
	if job.RecruiterID == "" {
		return fmt.Errorf("persist: job %s has no recruiter", jobID)
	}

	_, _, err = s.client.From("tasks").
		Insert(map[string]any{
			"recruiter_id": job.RecruiterID,
			"job_id":       jobID,
			"type":         "job_intake_review",
			"title":        "Review job intake & start matching",
			"status":       "pending",
			"source":       "intake-call",
		}, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("persist: create intake task: %w", err)
	}
	return nil
}

// EnsureCandidate inserts a fresh candidate row and returns its id. Called
// once per screening session, after the conversation has taken hold.
func (s *Store) EnsureCandidate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var rows []struct {
		ID string `json:"id"`
	}
	_, err := s.client.From("candidates").
		Insert(map[string]any{"status": "screening"}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("persist: create candidate: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("persist: candidate insert returned no id")
	}
	return rows[0].ID, nil
}

// OnboardCandidate upserts a CV-onboarded candidate keyed by email and
// returns the row id.
func (s *Store) OnboardCandidate(ctx context.Context, name, email, cvText string, profile extract.CandidateProfile, summary string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var existing struct {
		ID string `json:"id"`
	}
	_, selErr := s.client.From("candidates").
		Select("id", "", false).
		Eq("email", email).
		Single().
		ExecuteTo(&existing)

	if selErr == nil && existing.ID != "" {
		_, _, err := s.client.From("candidates").
			Update(map[string]any{
				"name":          name,
				"cv_text":       cvText,
				"cv_profile":    profile,
				"cv_summary":    summary,
				"final_profile": profile,
			}, "", "").
			Eq("id", existing.ID).
			Execute()
		if err != nil {
			return "", fmt.Errorf("persist: update onboarded candidate: %w", err)
		}
		return existing.ID, nil
	}

	var rows []struct {
		ID string `json:"id"`
	}
	_, err := s.client.From("candidates").
		Insert(map[string]any{
			"name":              name,
			"email":             email,
			"cv_text":           cvText,
			"cv_profile":        profile,
			"cv_summary":        summary,
			"interview_profile": map[string]any{},
			"final_profile":     profile,
		}, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("persist: insert onboarded candidate: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("persist: candidate insert returned no id")
	}
	return rows[0].ID, nil
}

// SaveCandidateProfile upserts the extracted profile onto the candidate row.
func (s *Store) SaveCandidateProfile(ctx context.Context, candidateID string, profile extract.CandidateProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From("candidates").
		Insert(map[string]any{
			"id":      candidateID,
			"profile": profile,
		}, true, "id", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("persist: save candidate profile: %w", err)
	}
	return nil
}

// CandidateContext loads what is already known about a candidate, for the
// structured interview phase. Returns a compact JSON document.
func (s *Store) CandidateContext(ctx context.Context, candidateID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var row struct {
		CVText  *string         `json:"cv_text"`
		Profile json.RawMessage `json:"profile"`
	}
	_, err := s.client.From("candidates").
		Select("cv_text,profile", "", false).
		Eq("id", candidateID).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return "", fmt.Errorf("persist: load candidate context: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"cv":      row.CVText,
		"profile": row.Profile,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ArchiveClip stores the raw turn clip for later review.
func (s *Store) ArchiveClip(ctx context.Context, sessionKey string, clip []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := fmt.Sprintf("calls/%s/%d.webm", sessionKey, time.Now().UnixNano())
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(clip)); err != nil {
		return fmt.Errorf("persist: archive clip: %w", err)
	}
	return nil
}
