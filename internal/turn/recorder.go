// Package turn buffers mic audio between speech start and speech stop into a
// single clip for transcription.
package turn

import (
	"bytes"
	"errors"
	"sync"
)

// MinClipBytes is the smallest clip worth transcribing. Anything shorter is
// treated as a false start and discarded.
const MinClipBytes = 1500

// ErrAlreadyRecording reports a Begin while a take is open.
var ErrAlreadyRecording = errors.New("turn: recording already in progress")

// Recorder collects one take at a time. Begin opens a take, Write appends to
// it, Finalize closes it and returns the clip exactly once.
type Recorder struct {
	mu        sync.Mutex
	recording bool
	buf       bytes.Buffer
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Begin opens a new take, discarding any leftover audio.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.buf.Reset()
	return nil
}

// Recording reports whether a take is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Write appends audio to the open take. Audio arriving outside a take is
// dropped.
func (r *Recorder) Write(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.buf.Write(pcm)
}

// Finalize closes the take and returns the clip. The second and later calls
// for the same take return (nil, false), so a clip is consumed exactly once.
func (r *Recorder) Finalize() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, false
	}
	r.recording = false
	clip := make([]byte, r.buf.Len())
	copy(clip, r.buf.Bytes())
	r.buf.Reset()
	return clip, true
}

// TooShort reports whether the clip is below the transcription floor.
func TooShort(clip []byte) bool {
	return len(clip) < MinClipBytes
}
