package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient synthesizes speech via the OpenAI audio/speech endpoint.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

// NewOpenAIClient builds a synthesizer for the given key.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    defaultOpenAIBaseURL,
	}
}

type speechRequest struct {
	Model string  `json:"model"`
	Input string  `json:"input"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// Synthesize returns the full audio blob for the text.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("tts: openai api key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}
	if voice == "" {
		voice = "alloy"
	}

	body, _ := json.Marshal(speechRequest{
		Model: c.Model,
		Input: text,
		Voice: voice,
		Speed: speed,
	})
	base := c.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: openai speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts: openai status=%d body=%s", resp.StatusCode, string(b))
	}
	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("tts: openai returned empty audio")
	}
	return clip, nil
}
