// Package silence watches mic volume and decides when the caller has started
// and stopped speaking. Volume is RMS over 10ms PCM16 frames, normalized to a
// 0..100 scale. A stop fires after the volume stays under the stop threshold
// for a full debounce window; any excursion above it resets the window.
package silence

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Config holds the volume thresholds and debounce window. Start is higher
// than stop so brief trailing sounds do not re-trigger speech.
type Config struct {
	StartThreshold float64
	StopThreshold  float64
	StopWindow     time.Duration
	FrameInterval  time.Duration
	SampleRate     int
}

// DefaultConfig matches the tuned turn-taking parameters.
func DefaultConfig() Config {
	return Config{
		StartThreshold: 8,
		StopThreshold:  5,
		StopWindow:     1200 * time.Millisecond,
		FrameInterval:  10 * time.Millisecond,
		SampleRate:     16000,
	}
}

// Events are the detector's callbacks. Both fire on the FeedPCM16 caller's
// goroutine.
type Events struct {
	OnSpeechStart func()
	OnSpeechStop  func()
}

// Detector segments incoming PCM into frames and runs the threshold state
// machine. It starts disarmed and ignores audio until the first Arm, so a
// call can finish its greeting before detection goes live; after a stop
// fires it disarms again until the next Arm, so one utterance produces
// exactly one stop.
type Detector struct {
	cfg Config
	ev  Events

	mu        sync.Mutex
	armed     bool
	speaking  bool
	silentFor time.Duration
}

func NewDetector(cfg Config, ev Events) *Detector {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = 10 * time.Millisecond
	}
	return &Detector{cfg: cfg, ev: ev}
}

// Arm re-enables detection for the next utterance and clears speech state.
func (d *Detector) Arm() {
	d.mu.Lock()
	d.armed = true
	d.speaking = false
	d.silentFor = 0
	d.mu.Unlock()
}

// Speaking reports whether speech is currently in progress.
func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// FeedPCM16 accepts little-endian PCM16 mic audio of arbitrary length and
// segments it into frames. Partial trailing frames are dropped.
func (d *Detector) FeedPCM16(pcm []byte) {
	samplesPerFrame := int(d.cfg.FrameInterval.Seconds() * float64(d.cfg.SampleRate))
	if samplesPerFrame <= 0 || len(pcm) < 2 {
		return
	}
	for off := 0; off+samplesPerFrame*2 <= len(pcm); off += samplesPerFrame * 2 {
		frame := pcm[off : off+samplesPerFrame*2]
		d.onFrame(volume(frame))
	}
}

func (d *Detector) onFrame(vol float64) {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}

	var fire func()
	if !d.speaking {
		if vol > d.cfg.StartThreshold {
			d.speaking = true
			d.silentFor = 0
			fire = d.ev.OnSpeechStart
		}
	} else {
		if vol < d.cfg.StopThreshold {
			d.silentFor += d.cfg.FrameInterval
			if d.silentFor >= d.cfg.StopWindow {
				d.speaking = false
				d.armed = false
				fire = d.ev.OnSpeechStop
			}
		} else {
			d.silentFor = 0
		}
	}
	d.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// volume is frame RMS mapped onto 0..100.
func volume(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0 * 100.0
}
