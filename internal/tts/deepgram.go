package tts

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramClient synthesizes over the Deepgram speak WebSocket and collects
// the PCM frames into one clip. The stream is considered complete after an
// idle window with no new audio, or at the hard deadline.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramClient{apiKey: apiKey, model: model, sampleRate: 48000, encoding: "linear16"}
}

// Synthesize returns linear16 PCM at 48kHz. voice overrides the configured
// model when set; speed is not supported by the speak WS and is ignored.
func (d *DeepgramClient) Synthesize(ctx context.Context, text, voice string, _ float64) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("tts: deepgram api key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}
	model := d.model
	if voice != "" {
		model = voice
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var (
		mu       sync.Mutex
		clip     bytes.Buffer
		lastRecv time.Time
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		mu.Lock()
		clip.Write(data)
		lastRecv = time.Now()
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("tts: deepgram create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("tts: deepgram connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("tts: deepgram speak text: %w", err)
	}
	_ = dg.Flush()

	idleWindow := 400 * time.Millisecond
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(12 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			mu.Lock()
			got := clip.Len()
			last := lastRecv
			mu.Unlock()
			if got > 0 && time.Since(last) > idleWindow {
				return snapshot(&mu, &clip), nil
			}
			if time.Now().After(deadline) {
				if got == 0 {
					return nil, fmt.Errorf("tts: deepgram produced no audio")
				}
				return snapshot(&mu, &clip), nil
			}
		}
	}
}

func snapshot(mu *sync.Mutex, clip *bytes.Buffer) []byte {
	mu.Lock()
	defer mu.Unlock()
	out := make([]byte, clip.Len())
	copy(out, clip.Bytes())
	return out
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
