package recognition

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// silenceThreshold is the base inactivity window required before an utterance
// is considered complete. Keep conservative to avoid cutting speakers mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension extends the threshold when the last word implies the
// speaker is likely to continue (e.g. "and", "or", "if").
const continuationExtension = 1200 * time.Millisecond

// stabilizationGrace absorbs late ASR updates after the silence window closes.
const stabilizationGrace = 250 * time.Millisecond

// AssemblyAIPort opens streaming transcription sessions against the
// AssemblyAI v3 realtime endpoint.
type AssemblyAIPort struct {
	apiKey string
	log    zerolog.Logger
}

func NewAssemblyAIPort(apiKey string, logger zerolog.Logger) *AssemblyAIPort {
	return &AssemblyAIPort{apiKey: apiKey, log: logger}
}

// Open dials the realtime WebSocket for the given language code.
func (p *AssemblyAIPort) Open(ctx context.Context, language string) (Stream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("assemblyai: API key is empty")
	}
	if language == "" {
		return nil, fmt.Errorf("assemblyai: language is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	params.Set("language_code", language)
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	headers := map[string][]string{"Authorization": {p.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			p.log.Error().Int("status", resp.StatusCode).Msg("assemblyai connection refused")
		}
		return nil, fmt.Errorf("connect to assemblyai: %w", err)
	}

	s := &assemblyStream{
		conn:      conn,
		language:  language,
		events:    make(chan Event, 100),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
		log:       p.log.With().Str("language", language).Logger(),
	}
	s.lastUpdateTime = time.Now()
	s.lastVoiceTime = time.Now()
	go s.readLoop()
	go s.writeLoop()
	s.log.Info().Msg("assemblyai stream opened")
	return s, nil
}

type assemblyStream struct {
	conn      *websocket.Conn
	language  string
	events    chan Event
	audioData chan []byte
	stopCh    chan struct{}
	log       zerolog.Logger

	mu     sync.RWMutex
	closed bool

	// utterance accumulation
	accMu                   sync.Mutex
	latestFullTranscript    string
	committedFullTranscript string
	lastUpdateTime          time.Time
	silenceTimer            *time.Timer
	lastVoiceTime           time.Time
}

// assemblyai message shapes
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *assemblyStream) Events() <-chan Event { return s.events }

// SendPCM16KLE queues audio for the write loop, dropping under backpressure.
func (s *assemblyStream) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("assemblyai: stream closed")
	}
	s.trackVoiceActivity(pcm)
	select {
	case s.audioData <- pcm:
	default:
		s.log.Debug().Msg("audio buffer full, dropping packet")
	}
	return nil
}

// trackVoiceActivity updates lastVoiceTime when the PCM buffer carries voice
// energy above a conservative RMS threshold. Expects 16-bit LE mono at 16 kHz.
func (s *assemblyStream) trackVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// Close terminates the websocket session and closes the event channel. Safe to
// call more than once.
func (s *assemblyStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = conn.Close()
	}
	// flush any uncommitted delta so the last words are not lost
	s.flushPendingDelta()
	close(s.events)
	s.log.Info().Msg("assemblyai stream closed")
	return nil
}

func (s *assemblyStream) emit(ev Event) {
	select {
	case <-s.stopCh:
	case s.events <- ev:
	}
}

func (s *assemblyStream) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("recovered in read loop")
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if !closed {
				s.emit(Event{Kind: EventError, Err: fmt.Errorf("assemblyai read: %w", err)})
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *assemblyStream) processMessage(message []byte) {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		s.log.Error().Err(err).Msg("unmarshal message")
		return
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		s.log.Warn().Msg("message missing type field")
		return
	}
	switch msgType {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		s.log.Info().Str("id", msg.ID).Time("expires_at", time.Unix(msg.ExpiresAt, 0)).Msg("assemblyai session began")
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case s.events <- Event{Kind: EventPartial, Text: msg.Transcript}:
		default:
		}
		s.accMu.Lock()
		s.latestFullTranscript = msg.Transcript
		s.lastUpdateTime = time.Now()
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(silenceThreshold, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(silenceThreshold)
		}
		s.accMu.Unlock()
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		s.log.Info().Float64("audio_s", msg.AudioDurationSeconds).Float64("session_s", msg.SessionDurationSeconds).Msg("assemblyai session terminated")
		s.flushPendingDelta()
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		s.emit(Event{Kind: EventError, Err: fmt.Errorf("assemblyai: %s", msg.Error)})
	default:
		s.log.Debug().Str("type", msgType).Msg("unknown message type")
	}
}

// finalizeDueToSilence fires after the silence window and emits the delta
// since the last committed transcript, if any.
func (s *assemblyStream) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	threshold := silenceThreshold
	if isContinuationLikely(s.latestFullTranscript) {
		threshold += continuationExtension
	}
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		// not enough inactivity; reschedule for the remaining window
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}
	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	// grace period to absorb late transcript updates
	time.Sleep(stabilizationGrace)

	s.accMu.Lock()
	threshold2 := silenceThreshold
	if isContinuationLikely(s.latestFullTranscript) {
		threshold2 += continuationExtension
	}
	if s.lastUpdateTime.After(lastUpdateAt) {
		// a late update arrived during grace; push the timer forward
		wait := threshold2
		if rem := threshold2 - time.Since(s.lastUpdateTime); rem > 10*time.Millisecond && rem < wait {
			wait = rem
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}
	delta := s.commitDeltaLocked()
	s.accMu.Unlock()

	if delta == "" {
		return
	}
	s.emit(Event{Kind: EventFinal, Text: delta})
}

// commitDeltaLocked advances the committed transcript and returns the trimmed
// uncommitted suffix. Caller holds accMu.
func (s *assemblyStream) commitDeltaLocked() string {
	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 && idx+len(base) <= len(latest) {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	return strings.TrimSpace(delta)
}

// flushPendingDelta emits any remaining uncommitted transcript, best-effort.
func (s *assemblyStream) flushPendingDelta() {
	s.accMu.Lock()
	delta := s.commitDeltaLocked()
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	select {
	case s.events <- Event{Kind: EventFinal, Text: delta}:
	case <-time.After(200 * time.Millisecond):
		s.log.Warn().Msg("timed out delivering final delta on flush")
	}
}

func (s *assemblyStream) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("recovered in write loop")
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audio := <-s.audioData:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
				s.log.Error().Err(err).Msg("send audio")
				return
			}
		}
	}
}

// isContinuationLikely reports whether the last meaningful word suggests the
// speaker will continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// prepositions that are awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
