package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ElevenLabsClient synthesizes via the ElevenLabs HTTP streaming endpoint and
// collects the stream into one clip.
type ElevenLabsClient struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
}

// NewElevenLabsClient builds a synthesizer for the given key.
func NewElevenLabsClient(apiKey string) *ElevenLabsClient {
	return &ElevenLabsClient{
		HTTPClient: &http.Client{Timeout: 0},
		APIKey:     apiKey,
		BaseURL:    "https://api.elevenlabs.io",
	}
}

// Synthesize streams PCM for the text and returns it as a single clip. voice
// is the ElevenLabs voice id; speed is not supported by the streaming
// endpoint and is ignored.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, text, voice string, _ float64) ([]byte, error) {
	if e.APIKey == "" || voice == "" {
		return nil, fmt.Errorf("tts: elevenlabs api key or voice id missing")
	}
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}

	base, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, err
	}
	base.Path = "/v1/text-to-speech/" + voice + "/stream"
	q := base.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", "pcm_48000")
	q.Set("optimize_streaming_latency", "2")
	base.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts: elevenlabs status=%d body=%s", resp.StatusCode, string(b))
	}

	var clip bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			clip.Write(chunk[:n])
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, fmt.Errorf("tts: elevenlabs read: %w", rerr)
		}
	}
	if clip.Len() == 0 {
		return nil, fmt.Errorf("tts: elevenlabs returned empty audio")
	}
	return clip.Bytes(), nil
}
