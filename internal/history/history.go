// Package history holds the in-memory ordered conversation for the active session.
package history

import "sync"

// Slot identifies one of the two fixed conversational roles.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Other returns the opposite speaker slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Direction returns the persistence direction tag for the active slot.
func (s Slot) Direction() string {
	if s == SlotB {
		return "B_to_A"
	}
	return "A_to_B"
}

// Turn is one rendered line of conversation: a recognized utterance or its translation.
type Turn struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Language      string `json:"language"`
	SpeakerSlot   Slot   `json:"speakerSlot"`
	IsTranslation bool   `json:"isTranslation"`
}

// History is an append-only ordered list of turns. Append and Clear are called
// only by the session controller; Snapshot is safe from any goroutine.
type History struct {
	mu     sync.RWMutex
	turns  []Turn
	nextID int64
}

func New() *History { return &History{} }

// Append adds a turn and assigns its render id. The id counter is independent
// of the persistence sequence counter.
func (h *History) Append(text, language string, slot Slot, isTranslation bool) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := Turn{
		ID:            h.nextID,
		Text:          text,
		Language:      language,
		SpeakerSlot:   slot,
		IsTranslation: isTranslation,
	}
	h.nextID++
	h.turns = append(h.turns, t)
	return t
}

// Snapshot returns a copy of the current turn list in append order.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear drops all turns and resets the render-key counter.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
	h.nextID = 0
}
