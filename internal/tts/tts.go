// Package tts turns reply text into a single playable audio clip.
package tts

import "context"

// Synthesizer produces one complete clip for the given text. voice selects
// the provider voice and speed is a playback-rate multiplier; backends that
// do not support one of them ignore it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}
