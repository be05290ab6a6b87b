// Package stt submits finalized audio clips to AssemblyAI's async transcript
// API: upload the clip, create a transcript job, poll until it completes.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.assemblyai.com/v2"

// Polling cadence and ceiling for transcript jobs. 12 attempts at 1.5s gives
// an ~18s ceiling per turn before the turn fails.
const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultMaxPolls     = 12
)

var (
	// ErrTranscriptionFailed reports a transcript job that ended in the
	// provider's error status. The turn fails, the call does not.
	ErrTranscriptionFailed = errors.New("stt: transcription failed")
	// ErrPollExhausted reports a job still pending after the poll ceiling.
	ErrPollExhausted = errors.New("stt: transcript not ready within poll ceiling")
)

// Options mirror the transcript job options the loop cares about.
type Options struct {
	LanguageDetection bool
	Punctuate         bool
}

// Status is the provider-reported job state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Result is one poll observation.
type Result struct {
	Status Status
	Text   string
}

// Client is the async transcription client.
type Client struct {
	HTTPClient   *http.Client
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int

	logger *zap.Logger
}

// New builds a client with the default endpoint and polling parameters.
func New(apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		APIKey:       apiKey,
		BaseURL:      defaultBaseURL,
		PollInterval: DefaultPollInterval,
		MaxPolls:     DefaultMaxPolls,
		logger:       logger,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
	Punctuate         bool   `json:"punctuate"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Upload sends the raw clip and returns the provider's audio URL handle.
func (c *Client) Upload(ctx context.Context, clip []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("stt: api key missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", bytes.NewReader(clip))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stt: upload status=%d body=%s", resp.StatusCode, string(b))
	}
	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("stt: decode upload response: %w", err)
	}
	if ur.UploadURL == "" {
		return "", fmt.Errorf("stt: upload returned no url")
	}
	return ur.UploadURL, nil
}

// CreateTranscript starts a transcript job for an uploaded clip.
func (c *Client) CreateTranscript(ctx context.Context, audioURL string, opts Options) (string, error) {
	body, _ := json.Marshal(transcriptRequest{
		AudioURL:          audioURL,
		LanguageDetection: opts.LanguageDetection,
		Punctuate:         opts.Punctuate,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: create transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stt: create transcript status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("stt: decode transcript response: %w", err)
	}
	if tr.ID == "" {
		return "", fmt.Errorf("stt: transcript creation returned no id")
	}
	return tr.ID, nil
}

// Poll fetches one observation of the job state.
func (c *Client) Poll(ctx context.Context, id string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/transcript/"+id, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("stt: poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("stt: poll status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Result{}, fmt.Errorf("stt: decode poll response: %w", err)
	}
	return Result{Status: Status(tr.Status), Text: tr.Text}, nil
}

// Transcribe runs the full upload -> create -> bounded-poll pipeline and
// returns the transcript text. Exhausting the poll ceiling returns
// ErrPollExhausted; a job ending in the error status returns
// ErrTranscriptionFailed. Both fail only this turn.
func (c *Client) Transcribe(ctx context.Context, clip []byte) (string, error) {
	audioURL, err := c.Upload(ctx, clip)
	if err != nil {
		return "", err
	}
	id, err := c.CreateTranscript(ctx, audioURL, Options{LanguageDetection: true, Punctuate: true})
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= c.MaxPolls; attempt++ {
		res, err := c.Poll(ctx, id)
		if err != nil {
			return "", err
		}
		switch res.Status {
		case StatusCompleted:
			if res.Text != "" {
				c.logger.Debug("transcript completed",
					zap.String("transcript_id", id),
					zap.Int("attempts", attempt),
				)
				return res.Text, nil
			}
			// Completed with empty text: keep polling within the ceiling;
			// the provider occasionally reports completion before text.
		case StatusError:
			return "", fmt.Errorf("%w: id=%s", ErrTranscriptionFailed, id)
		}
		if attempt == c.MaxPolls {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
	return "", fmt.Errorf("%w: id=%s attempts=%d", ErrPollExhausted, id, c.MaxPolls)
}
