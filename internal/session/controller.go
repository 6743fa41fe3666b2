// Package session drives one live, turn-taking translated conversation: it
// owns the session identity, the persistence sequence counter, the active
// speaker slot, and the phase machine that reacts to recognition events.
//
// The controller is single-writer: every state transition runs on one actor
// goroutine fed by a command channel. Recognition callbacks, translation
// completions and warm-up expiries are marshaled onto that goroutine as
// closures; async results carry the stream epoch they belong to and are
// discarded when the epoch has moved on.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/history"
	"github.com/chadiek/live-interpreter/internal/metrics"
	"github.com/chadiek/live-interpreter/internal/recognition"
	"github.com/chadiek/live-interpreter/internal/translate"
	"github.com/chadiek/live-interpreter/internal/turnlog"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreparing  Phase = "preparing"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
)

// translateTimeout bounds one translation call.
const translateTimeout = 20 * time.Second

// Speaker is the slice of the speech-output coordinator the controller uses
// to voice translations.
type Speaker interface {
	Busy() bool
	Speak(ctx context.Context, text, language string, isTranslation bool, voice string) bool
}

// Config carries the controller tunables.
type Config struct {
	// WarmUpDelay is applied before the recognition stream is opened.
	WarmUpDelay time.Duration
	// PartialGraceWindow suppresses partials right after open; the engine is
	// known to emit noise while warming up.
	PartialGraceWindow time.Duration
	// AutoSpeakTranslations voices each successful translation when the
	// speaker is free.
	AutoSpeakTranslations bool
	// Voice overrides the speech provider's default voice when set.
	Voice string
}

// StartParams are the arguments of one start command.
type StartParams struct {
	SpeakingLanguage string       `json:"speakingLanguage"`
	PartnerLanguage  string       `json:"partnerLanguage"`
	ActiveSlot       history.Slot `json:"activeSlot"`
	ResetSession     bool         `json:"resetSession"`
}

// Snapshot is the UI-facing read model.
type Snapshot struct {
	Phase            Phase        `json:"phase"`
	Status           string       `json:"status"`
	SessionID        string       `json:"sessionId"`
	Sequence         int64        `json:"sequence"`
	ActiveSlot       history.Slot `json:"activeSlot"`
	SpeakingLanguage string       `json:"speakingLanguage"`
	PartnerLanguage  string       `json:"partnerLanguage"`
	LiveTranscript   string       `json:"liveTranscript"`
	LastTranslation  string       `json:"lastTranslation"`
}

// Event is pushed to subscribers as the conversation progresses.
type Event struct {
	Type      string        `json:"type"` // "phase" | "status" | "partial" | "turn" | "session"
	Phase     Phase         `json:"phase,omitempty"`
	Status    string        `json:"status,omitempty"`
	Text      string        `json:"text,omitempty"`
	Turn      *history.Turn `json:"turn,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
}

// Controller is the session state machine. Construct with New, release with Close.
type Controller struct {
	rec     recognition.Port
	tr      translate.Translator
	speaker Speaker
	writer  *turnlog.Writer
	hist    *history.History
	cfg     Config
	log     zerolog.Logger

	cmds      chan func()
	closed    chan struct{}
	closeOnce sync.Once

	// actor-owned state; touched only from run()
	phase           Phase
	status          string
	sessionID       string
	sequence        int64
	activeSlot      history.Slot
	speakingLang    string
	partnerLang     string
	stream          recognition.Stream
	epoch           uint64
	openedAt        time.Time
	prepareCancel   context.CancelFunc
	translateCancel context.CancelFunc
	translating     bool
	pending         []string
	liveTranscript  string
	lastTranslation string

	// audio fan-in; updated by the actor, read by the audio path
	audioMu     sync.RWMutex
	audioStream recognition.Stream

	// published read model
	viewMu sync.RWMutex
	view   Snapshot

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New builds a controller. speaker and writer may be nil (no playback, no
// persistence); hist must not be.
func New(rec recognition.Port, tr translate.Translator, speaker Speaker, writer *turnlog.Writer, hist *history.History, cfg Config, logger zerolog.Logger) *Controller {
	c := &Controller{
		rec:        rec,
		tr:         tr,
		speaker:    speaker,
		writer:     writer,
		hist:       hist,
		cfg:        cfg,
		log:        logger,
		cmds:       make(chan func(), 64),
		closed:     make(chan struct{}),
		phase:      PhaseIdle,
		activeSlot: history.SlotA,
		subs:       make(map[chan Event]struct{}),
	}
	c.publish()
	go c.run()
	return c
}

func (c *Controller) run() {
	for {
		select {
		case <-c.closed:
			return
		case fn := <-c.cmds:
			fn()
		}
	}
}

func (c *Controller) do(fn func()) {
	select {
	case <-c.closed:
	case c.cmds <- fn:
	}
}

// Close stops the engine and releases the actor goroutine.
func (c *Controller) Close() {
	done := make(chan struct{})
	c.do(func() {
		c.stopLocked()
		close(done)
	})
	select {
	case <-done:
	case <-c.closed:
	case <-time.After(2 * time.Second):
	}
	c.closeOnce.Do(func() { close(c.closed) })
}

// History exposes the read-only conversation for rendering.
func (c *Controller) History() *history.History { return c.hist }

// Snapshot returns the current read model.
func (c *Controller) Snapshot() Snapshot {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// Subscribe registers an event channel. The returned func unsubscribes.
// Events are dropped, not queued, for slow subscribers.
func (c *Controller) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	c.subMu.Unlock()
}

// FeedAudio forwards captured PCM 16kHz mono LE to the open recognition
// stream. Audio arriving while no stream is open is dropped.
func (c *Controller) FeedAudio(pcm []byte) {
	c.audioMu.RLock()
	s := c.audioStream
	c.audioMu.RUnlock()
	if s != nil {
		_ = s.SendPCM16KLE(pcm)
	}
}

// Start opens a listening cycle for the given languages and speaker slot. It
// is a no-op unless the controller is idle with no stream open.
func (c *Controller) Start(p StartParams) {
	c.do(func() { c.startLocked(p) })
}

// Stop tears the engine down from any phase. Calling it twice, or with no
// engine open, is safe.
func (c *Controller) Stop() {
	c.do(func() { c.stopLocked() })
}

// ToggleSpeaker switches the active slot and restarts recognition with the
// languages swapped. Requests arriving while preparing or processing are
// ignored, not queued: restarting a half-initialized engine, or changing the
// target language under an in-flight translation, would leave the resulting
// turn attributed to nobody.
func (c *Controller) ToggleSpeaker(newSlot history.Slot) {
	c.do(func() { c.toggleLocked(newSlot) })
}

// EndSession stops the engine and clears the session identity, the turn
// history, and all scratch transcript state. The next Start begins a new
// session with a fresh id.
func (c *Controller) EndSession() {
	c.do(func() { c.endSessionLocked() })
}

// --- actor internals ---

func (c *Controller) startLocked(p StartParams) {
	if c.phase != PhaseIdle || c.stream != nil {
		c.log.Debug().Str("phase", string(c.phase)).Msg("start ignored")
		return
	}
	if p.SpeakingLanguage == "" || p.PartnerLanguage == "" {
		c.setStatus("both languages are required")
		return
	}
	if p.ActiveSlot != history.SlotA && p.ActiveSlot != history.SlotB {
		p.ActiveSlot = history.SlotA
	}
	if p.ResetSession {
		c.hist.Clear()
		c.sessionID = ""
		c.sequence = 0
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
		c.sequence = 0
		metrics.Default.SessionsStarted.Inc()
		c.emit(Event{Type: "session", SessionID: c.sessionID})
	}
	c.speakingLang = p.SpeakingLanguage
	c.partnerLang = p.PartnerLanguage
	c.activeSlot = p.ActiveSlot
	c.liveTranscript = ""
	c.setPhase(PhasePreparing)
	c.setStatus("preparing…")

	c.epoch++
	epoch := c.epoch
	lang := c.speakingLang
	ctx, cancel := context.WithCancel(context.Background())
	c.prepareCancel = cancel

	go func() {
		// warm-up before touching the engine
		select {
		case <-time.After(c.cfg.WarmUpDelay):
		case <-ctx.Done():
			return
		}
		stream, err := c.rec.Open(ctx, lang)
		c.do(func() { c.openCompleted(epoch, stream, err) })
	}()
}

func (c *Controller) openCompleted(epoch uint64, stream recognition.Stream, err error) {
	if epoch != c.epoch || c.phase != PhasePreparing {
		// stopped or restarted while opening; release the orphan
		if stream != nil {
			_ = stream.Close()
		}
		return
	}
	c.prepareCancel = nil
	if err != nil {
		metrics.Default.RecognitionFailures.Inc()
		c.log.Error().Err(err).Str("language", c.speakingLang).Msg("recognition open failed")
		c.setPhase(PhaseIdle)
		c.setStatus(fmt.Sprintf("could not start listening: %v", err))
		return
	}
	c.stream = stream
	c.setAudioStream(stream)
	c.openedAt = time.Now()
	metrics.Default.SessionsActive.Inc()
	c.setPhase(PhaseListening)
	c.setStatus("listening…")
	go c.pump(epoch, stream)
}

// pump forwards stream events into the actor.
func (c *Controller) pump(epoch uint64, stream recognition.Stream) {
	for ev := range stream.Events() {
		ev := ev
		c.do(func() { c.handleRecognitionEvent(epoch, ev) })
	}
}

func (c *Controller) handleRecognitionEvent(epoch uint64, ev recognition.Event) {
	if epoch != c.epoch || c.stream == nil {
		return
	}
	switch ev.Kind {
	case recognition.EventPartial:
		if c.phase != PhaseListening && c.phase != PhaseProcessing {
			return
		}
		if time.Since(c.openedAt) < c.cfg.PartialGraceWindow {
			// engine warm-up noise
			return
		}
		metrics.Default.TranscriptsPartial.Inc()
		c.liveTranscript = ev.Text
		c.publish()
		c.emit(Event{Type: "partial", Text: ev.Text})
	case recognition.EventFinal:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		metrics.Default.TranscriptsFinal.Inc()
		turn := c.hist.Append(text, c.speakingLang, c.activeSlot, false)
		metrics.Default.TurnsAppended.WithLabelValues("original").Inc()
		c.emit(Event{Type: "turn", Turn: &turn})
		c.liveTranscript = ""
		c.setPhase(PhaseProcessing)
		c.setStatus("translating…")
		c.pending = append(c.pending, text)
		if !c.translating {
			c.startNextTranslation(false)
		}
	case recognition.EventError:
		metrics.Default.RecognitionFailures.Inc()
		c.log.Error().Err(ev.Err).Msg("recognition stream error")
		c.setStatus(fmt.Sprintf("recognition error: %v", ev.Err))
		c.stopLocked()
	}
}

// startNextTranslation pulls the next queued utterance or returns the phase
// to Listening. failed keeps the last advisory status visible instead of
// clobbering it with "listening…".
func (c *Controller) startNextTranslation(failed bool) {
	if len(c.pending) == 0 {
		c.translating = false
		if c.phase == PhaseProcessing {
			c.setPhase(PhaseListening)
			if !failed {
				c.setStatus("listening…")
			}
		}
		return
	}
	original := c.pending[0]
	c.pending = c.pending[1:]
	c.translating = true

	epoch := c.epoch
	src, dst, slot := c.speakingLang, c.partnerLang, c.activeSlot
	ctx, cancel := context.WithTimeout(context.Background(), translateTimeout)
	c.translateCancel = cancel
	go func() {
		translated, err := c.tr.Translate(ctx, original, src, dst)
		cancel()
		c.do(func() { c.translationDone(epoch, original, translated, err, src, dst, slot) })
	}()
}

func (c *Controller) translationDone(epoch uint64, original, translated string, err error, src, dst string, slot history.Slot) {
	if epoch != c.epoch || c.stream == nil {
		// stopped or toggled since; the result has no home anymore
		return
	}
	c.translateCancel = nil
	if err != nil {
		metrics.Default.TranslationFailures.Inc()
		c.log.Error().Err(err).Str("source", src).Str("target", dst).Msg("translation failed")
		c.setStatus("translation failed, still listening")
		c.startNextTranslation(true)
		return
	}

	turn := c.hist.Append(translated, dst, slot, true)
	metrics.Default.TurnsAppended.WithLabelValues("translation").Inc()
	c.emit(Event{Type: "turn", Turn: &turn})
	c.lastTranslation = translated
	defer c.publish()

	// sequence is assigned here, synchronously, so records leave in strictly
	// increasing order; the record carries the pre-increment value
	seq := c.sequence
	c.sequence++
	if c.writer != nil {
		c.writer.Submit(turnlog.Record{
			Mode:           turnlog.ModeContinuous,
			OriginalText:   original,
			TranslatedText: translated,
			SourceLanguage: src,
			TargetLanguage: dst,
			SessionID:      c.sessionID,
			SpeakerSlot:    string(slot),
			Direction:      slot.Direction(),
			Sequence:       seq,
		})
	}

	if c.cfg.AutoSpeakTranslations && c.speaker != nil && !c.speaker.Busy() {
		voice := c.cfg.Voice
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			c.speaker.Speak(ctx, translated, dst, true, voice)
		}()
	}

	c.startNextTranslation(false)
}

func (c *Controller) toggleLocked(newSlot history.Slot) {
	if c.phase != PhaseListening {
		c.log.Debug().Str("phase", string(c.phase)).Msg("speaker toggle ignored")
		return
	}
	if newSlot != history.SlotA && newSlot != history.SlotB {
		return
	}
	if newSlot == c.activeSlot {
		return
	}
	metrics.Default.SpeakerToggles.Inc()
	speaking, partner := c.partnerLang, c.speakingLang
	c.stopLocked()
	c.startLocked(StartParams{
		SpeakingLanguage: speaking,
		PartnerLanguage:  partner,
		ActiveSlot:       newSlot,
		ResetSession:     false,
	})
}

func (c *Controller) stopLocked() {
	if c.stream == nil && c.phase != PhasePreparing && !c.translating {
		if c.phase != PhaseIdle {
			c.setPhase(PhaseIdle)
		}
		return
	}
	if c.prepareCancel != nil {
		c.prepareCancel()
		c.prepareCancel = nil
	}
	if c.translateCancel != nil {
		c.translateCancel()
		c.translateCancel = nil
	}
	c.translating = false
	c.pending = nil
	if c.stream != nil {
		metrics.Default.SessionsActive.Dec()
		_ = c.stream.Close()
		c.stream = nil
	}
	c.setAudioStream(nil)
	// any async result still in flight belongs to a dead epoch now
	c.epoch++
	c.setPhase(PhaseIdle)
	c.publish()
}

func (c *Controller) endSessionLocked() {
	c.stopLocked()
	c.hist.Clear()
	c.sessionID = ""
	c.sequence = 0
	c.liveTranscript = ""
	c.lastTranslation = ""
	c.setStatus("")
	c.emit(Event{Type: "session", SessionID: ""})
}

func (c *Controller) setAudioStream(s recognition.Stream) {
	c.audioMu.Lock()
	c.audioStream = s
	c.audioMu.Unlock()
}

func (c *Controller) setPhase(p Phase) {
	c.phase = p
	c.publish()
	c.emit(Event{Type: "phase", Phase: p})
}

func (c *Controller) setStatus(s string) {
	c.status = s
	c.publish()
	c.emit(Event{Type: "status", Status: s})
}

// publish refreshes the read model under the view lock.
func (c *Controller) publish() {
	c.viewMu.Lock()
	c.view = Snapshot{
		Phase:            c.phase,
		Status:           c.status,
		SessionID:        c.sessionID,
		Sequence:         c.sequence,
		ActiveSlot:       c.activeSlot,
		SpeakingLanguage: c.speakingLang,
		PartnerLanguage:  c.partnerLang,
		LiveTranscript:   c.liveTranscript,
		LastTranslation:  c.lastTranslation,
	}
	c.viewMu.Unlock()
}
