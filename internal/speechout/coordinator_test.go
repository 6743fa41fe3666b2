package speechout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePort struct {
	calls int32
	err   error
	delay time.Duration
}

func (f *fakePort) Speak(ctx context.Context, text, language, voice string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestSpeak_BlankTextIsNoop(t *testing.T) {
	p := &fakePort{}
	c := New(p, 0, zerolog.Nop())
	if c.Speak(context.Background(), "   ", "en-US", false, "") {
		t.Fatalf("expected blank text to be rejected")
	}
	if atomic.LoadInt32(&p.calls) != 0 {
		t.Fatalf("port must not be invoked for blank text")
	}
}

func TestSpeak_WhileBusyIsDroppedAndDoesNotDisturbInFlightCall(t *testing.T) {
	p := &fakePort{delay: 100 * time.Millisecond}
	c := New(p, 0, zerolog.Nop())

	done := make(chan bool, 1)
	go func() { done <- c.Speak(context.Background(), "hello", "en-US", false, "") }()

	// wait until the first call is in flight
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !c.Busy() {
		time.Sleep(2 * time.Millisecond)
	}
	if !c.Busy() {
		t.Fatalf("expected coordinator busy")
	}
	if c.Speak(context.Background(), "second", "en-US", false, "") {
		t.Fatalf("expected concurrent speak to be dropped")
	}
	if got := <-done; !got {
		t.Fatalf("in-flight call should complete normally")
	}
	if atomic.LoadInt32(&p.calls) != 1 {
		t.Fatalf("expected exactly one port invocation, got %d", p.calls)
	}
	if c.Busy() {
		t.Fatalf("busy must clear after completion")
	}
}

func TestSpeak_BusyClearsAfterPortFailure(t *testing.T) {
	p := &fakePort{err: errors.New("device gone")}
	c := New(p, 10*time.Millisecond, zerolog.Nop())
	if !c.Speak(context.Background(), "hello", "en-US", true, "") {
		t.Fatalf("expected playback attempted")
	}
	if c.Busy() {
		t.Fatalf("busy stuck after failure")
	}
	if c.Status() != "" {
		t.Fatalf("status should clear after settle, got %q", c.Status())
	}
}

func TestSpeak_StatusReflectsTranslationFlag(t *testing.T) {
	p := &fakePort{delay: 50 * time.Millisecond}
	c := New(p, 0, zerolog.Nop())
	go c.Speak(context.Background(), "你好", "zh-HK", true, "")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Status() == "" {
		time.Sleep(2 * time.Millisecond)
	}
	if c.Status() != "speaking translation…" {
		t.Fatalf("status: got %q", c.Status())
	}
}
