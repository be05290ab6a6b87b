package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New("test-key", nil)
	c.BaseURL = srv.URL
	c.PollInterval = time.Millisecond
	return c, srv.Close
}

func TestTranscribe_CompletesAfterPolls(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing auth header")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/clip"})
	})
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		var req transcriptRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.LanguageDetection || !req.Punctuate {
			t.Errorf("expected language_detection and punctuate, got %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "queued"})
	})
	mux.HandleFunc("/transcript/tr-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		if n < 3 {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": "completed", "text": "I need a backend engineer"})
	})

	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	text, err := c.Transcribe(context.Background(), []byte("fake-audio"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "I need a backend engineer" {
		t.Fatalf("text = %q", text)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
}

func TestTranscribe_PollExhaustion(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/clip"})
	})
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-2", "status": "queued"})
	})
	mux.HandleFunc("/transcript/tr-2", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-2", "status": "processing"})
	})

	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	_, err := c.Transcribe(context.Background(), []byte("fake-audio"))
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("err = %v, want ErrPollExhausted", err)
	}
	if got := atomic.LoadInt32(&polls); got != DefaultMaxPolls {
		t.Fatalf("polls = %d, want %d", got, DefaultMaxPolls)
	}
}

func TestTranscribe_FailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/clip"})
	})
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-3", "status": "queued"})
	})
	mux.HandleFunc("/transcript/tr-3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr-3", "status": "error", "error": "bad audio"})
	})

	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	_, err := c.Transcribe(context.Background(), []byte("fake-audio"))
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
}

func TestUpload_RejectsMissingURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})
	c, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	if _, err := c.Upload(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error for missing upload_url")
	}
}

func TestUpload_MissingKey(t *testing.T) {
	c := New("", nil)
	if _, err := c.Upload(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error when api key missing")
	}
}
