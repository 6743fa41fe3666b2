package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/history"
	"github.com/chadiek/live-interpreter/internal/recognition"
	"github.com/chadiek/live-interpreter/internal/rtc"
	"github.com/chadiek/live-interpreter/internal/session"
	"github.com/chadiek/live-interpreter/internal/speechout"
)

type fakeStream struct {
	events chan recognition.Event
}

func (s *fakeStream) Events() <-chan recognition.Event { return s.events }
func (s *fakeStream) SendPCM16KLE(_ []byte) error      { return nil }
func (s *fakeStream) Close() error                     { close(s.events); return nil }

type fakePort struct{}

func (p *fakePort) Open(_ context.Context, _ string) (recognition.Stream, error) {
	return &fakeStream{events: make(chan recognition.Event, 8)}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return "tr:" + text, nil
}

type fakeSpeech struct{ spoken []string }

func (f *fakeSpeech) Speak(_ context.Context, text, _, _ string) error {
	f.spoken = append(f.spoken, text)
	return nil
}

type fakeOffer struct {
	answer rtc.SessionDescription
	err    error
}

func (f *fakeOffer) HandleOffer(_ context.Context, _ rtc.SessionDescription) (rtc.SessionDescription, error) {
	return f.answer, f.err
}

func newTestServer(t *testing.T, auth string) (*Server, *session.Controller) {
	t.Helper()
	ctrl := session.New(&fakePort{}, fakeTranslator{}, nil, nil, history.New(), session.Config{WarmUpDelay: time.Millisecond}, zerolog.Nop())
	t.Cleanup(ctrl.Close)
	coord := speechout.New(&fakeSpeech{}, 0, zerolog.Nop())
	srv := New(ctrl, coord, &fakeOffer{answer: rtc.SessionDescription{Type: "answer", SDP: "v=0"}}, auth, zerolog.Nop())
	return srv, ctrl
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, "")
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCall_AnswersOffer(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := `{"type":"offer","sdp":"v=0"}`
	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var answer rtc.SessionDescription
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Type != "answer" {
		t.Fatalf("expected answer, got %q", answer.Type)
	}
}

func TestCall_OfferFailure(t *testing.T) {
	srv, _ := newTestServer(t, "")
	srv.offer = &fakeOffer{err: errors.New("boom")}
	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCall_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	r := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r2 := httptest.NewRequest(http.MethodPost, "/call?password=secret", strings.NewReader(`{"type":"offer","sdp":"v=0"}`))
	r2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 with password, got %d", w2.Code)
	}
}

func TestSessionStart_Validates(t *testing.T) {
	srv, _ := newTestServer(t, "")
	r := httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(`{"speakingLanguage":"en-US"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without partner language, got %d", w.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, ctrl := newTestServer(t, "")

	start := `{"speakingLanguage":"en-US","partnerLanguage":"zh-HK","activeSlot":"A","resetSession":true}`
	r := httptest.NewRequest(http.MethodPost, "/session/start", strings.NewReader(start))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ctrl.Snapshot().Phase == session.PhaseListening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("controller never reached listening, snapshot=%+v", ctrl.Snapshot())
		}
		time.Sleep(2 * time.Millisecond)
	}

	rs := httptest.NewRequest(http.MethodGet, "/session", nil)
	ws := httptest.NewRecorder()
	srv.Handler().ServeHTTP(ws, rs)
	var snap session.Snapshot
	if err := json.Unmarshal(ws.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID == "" || snap.Phase != session.PhaseListening {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rt := httptest.NewRequest(http.MethodGet, "/session/turns", nil)
	wt := httptest.NewRecorder()
	srv.Handler().ServeHTTP(wt, rt)
	var turns []history.Turn
	if err := json.Unmarshal(wt.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(turns))
	}

	re := httptest.NewRequest(http.MethodPost, "/session/end", nil)
	we := httptest.NewRecorder()
	srv.Handler().ServeHTTP(we, re)
	if we.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", we.Code)
	}
}

func TestToggle_RejectsInvalidSlot(t *testing.T) {
	srv, _ := newTestServer(t, "")
	r := httptest.NewRequest(http.MethodPost, "/session/toggle", strings.NewReader(`{"slot":"C"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSpeak_ReportsAcceptance(t *testing.T) {
	srv, _ := newTestServer(t, "")
	r := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`{"text":"hello","language":"en-US"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["accepted"] {
		t.Fatalf("expected speak to be accepted")
	}
}

func TestAuthOK(t *testing.T) {
	if !authOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with Authorization bearer")
	}
	r4 := httptest.NewRequest(http.MethodGet, "/", nil)
	r4.Header.Set("Authorization", "bearer abc")
	if !authOK(r4, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}
