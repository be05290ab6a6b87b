package turn

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecorder_CollectsOneTake(t *testing.T) {
	r := NewRecorder()
	if err := r.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	r.Write([]byte("aaa"))
	r.Write([]byte("bbb"))

	clip, ok := r.Finalize()
	if !ok {
		t.Fatal("finalize returned no clip")
	}
	if !bytes.Equal(clip, []byte("aaabbb")) {
		t.Fatalf("clip = %q", clip)
	}
}

func TestRecorder_DoubleBegin(t *testing.T) {
	r := NewRecorder()
	_ = r.Begin()
	if err := r.Begin(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorder_FinalizeOnce(t *testing.T) {
	r := NewRecorder()
	_ = r.Begin()
	r.Write([]byte("audio"))

	if _, ok := r.Finalize(); !ok {
		t.Fatal("first finalize must return the clip")
	}
	if clip, ok := r.Finalize(); ok || clip != nil {
		t.Fatalf("second finalize = (%v, %v), want (nil, false)", clip, ok)
	}
}

func TestRecorder_WriteOutsideTakeDropped(t *testing.T) {
	r := NewRecorder()
	r.Write([]byte("stray"))
	_ = r.Begin()
	r.Write([]byte("kept"))
	clip, _ := r.Finalize()
	if !bytes.Equal(clip, []byte("kept")) {
		t.Fatalf("clip = %q, stray audio must not leak into the take", clip)
	}
}

func TestRecorder_NewTakeDiscardsOldAudio(t *testing.T) {
	r := NewRecorder()
	_ = r.Begin()
	r.Write([]byte("old"))
	_, _ = r.Finalize()

	_ = r.Begin()
	r.Write([]byte("new"))
	clip, _ := r.Finalize()
	if !bytes.Equal(clip, []byte("new")) {
		t.Fatalf("clip = %q", clip)
	}
}

func TestTooShort(t *testing.T) {
	if !TooShort(make([]byte, MinClipBytes-1)) {
		t.Fatal("clip below floor must be too short")
	}
	if TooShort(make([]byte, MinClipBytes)) {
		t.Fatal("clip at floor must be accepted")
	}
}
