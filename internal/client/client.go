// Package client is the loop's HTTP transport: it submits turns to the
// interview server as multipart uploads and plays back what comes home.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sawt-ai/sawt/internal/call"
)

// Client implements the orchestrator's Submitter over HTTP.
type Client struct {
	HTTPClient  *http.Client
	BaseURL     string
	Agent       string
	JobID       string
	CandidateID string
}

func New(baseURL, agent string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Agent:      agent,
	}
}

// Greeting requests the agent's opening line for a fresh session.
func (c *Client) Greeting(ctx context.Context, sessionKey string) (call.TurnResult, error) {
	return c.submit(ctx, sessionKey, nil, nil)
}

// SubmitTurn uploads one finalized clip. sent fires once the request body
// has been handed to the transport, marking the upload/thinking boundary.
func (c *Client) SubmitTurn(ctx context.Context, sessionKey string, clip []byte, sent func()) (call.TurnResult, error) {
	return c.submit(ctx, sessionKey, clip, sent)
}

// EndCall closes the session and returns the summary.
func (c *Client) EndCall(ctx context.Context, sessionKey string) (call.EndResult, error) {
	body, _ := json.Marshal(map[string]string{
		"sessionId": sessionKey,
		"jobId":     c.JobID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/agents/%s/summary", c.BaseURL, c.Agent), bytes.NewReader(body))
	if err != nil {
		return call.EndResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return call.EndResult{}, fmt.Errorf("client: end call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return call.EndResult{}, fmt.Errorf("client: end call status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return call.EndResult{}, fmt.Errorf("client: decode summary: %w", err)
	}
	return call.EndResult{Summary: out.Summary}, nil
}

func (c *Client) submit(ctx context.Context, sessionKey string, clip []byte, sent func()) (call.TurnResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("sessionId", sessionKey)
	if c.JobID != "" {
		_ = w.WriteField("jobId", c.JobID)
	}
	if c.CandidateID != "" {
		_ = w.WriteField("candidateId", c.CandidateID)
	}
	if clip != nil {
		fw, err := w.CreateFormFile("audio", "clip.webm")
		if err != nil {
			return call.TurnResult{}, err
		}
		if _, err := fw.Write(clip); err != nil {
			return call.TurnResult{}, err
		}
	}
	if err := w.Close(); err != nil {
		return call.TurnResult{}, err
	}

	var body io.Reader = &buf
	if sent != nil {
		body = &notifyReader{r: &buf, notify: sent}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/agents/%s/turns", c.BaseURL, c.Agent), body)
	if err != nil {
		return call.TurnResult{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return call.TurnResult{}, fmt.Errorf("client: submit turn: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return call.TurnResult{}, fmt.Errorf("client: turn status=%d body=%s", resp.StatusCode, string(b))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return call.TurnResult{}, fmt.Errorf("client: read audio: %w", err)
		}
		return call.TurnResult{Audio: audio}, nil
	}

	var ack struct {
		OK   bool   `json:"ok"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return call.TurnResult{}, fmt.Errorf("client: decode ack: %w", err)
	}
	return call.TurnResult{Ack: true, SpokenText: ack.Text}, nil
}

// notifyReader fires notify exactly once, when the wrapped reader drains.
// The transport finishes reading the request body before the server can
// respond, so this marks the moment the clip is fully uploaded.
type notifyReader struct {
	r      io.Reader
	notify func()
	once   sync.Once
}

func (n *notifyReader) Read(p []byte) (int, error) {
	m, err := n.r.Read(p)
	if err == io.EOF {
		n.once.Do(n.notify)
	}
	return m, err
}
