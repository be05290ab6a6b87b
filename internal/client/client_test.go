package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSubmitTurn_AudioResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/recruiter/turns" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("sessionId") != "s1" || r.FormValue("jobId") != "job-1" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("audio part: %v", err)
		} else {
			f.Close()
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("reply-audio"))
	}))
	defer srv.Close()

	c := New(srv.URL, "recruiter")
	c.JobID = "job-1"

	var sentCount int32
	res, err := c.SubmitTurn(context.Background(), "s1", []byte("clip"), func() {
		atomic.AddInt32(&sentCount, 1)
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if string(res.Audio) != "reply-audio" || res.Ack {
		t.Fatalf("result = %+v", res)
	}
	if atomic.LoadInt32(&sentCount) != 1 {
		t.Fatalf("sent fired %d times, want once", sentCount)
	}
}

func TestSubmitTurn_JSONAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "text": "fallback line"})
	}))
	defer srv.Close()

	c := New(srv.URL, "recruiter")
	res, err := c.SubmitTurn(context.Background(), "s1", []byte("clip"), func() {})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Ack || res.SpokenText != "fallback line" || res.Audio != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestGreeting_NoAudioPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("audio"); err == nil {
			t.Error("greeting must not carry an audio part")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("greeting-audio"))
	}))
	defer srv.Close()

	c := New(srv.URL, "recruiter")
	res, err := c.Greeting(context.Background(), "s1")
	if err != nil {
		t.Fatalf("greeting: %v", err)
	}
	if string(res.Audio) != "greeting-audio" {
		t.Fatalf("result = %+v", res)
	}
}

func TestEndCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/candidate/summary" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["sessionId"] != "s1" {
			t.Errorf("request = %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "summary": "bullet summary"})
	}))
	defer srv.Close()

	c := New(srv.URL, "candidate")
	res, err := c.EndCall(context.Background(), "s1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.Summary != "bullet summary" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSubmitTurn_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stt down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "recruiter")
	if _, err := c.SubmitTurn(context.Background(), "s1", []byte("clip"), func() {}); err == nil {
		t.Fatal("expected error on 500")
	}
}
