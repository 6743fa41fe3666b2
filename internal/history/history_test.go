package history

import "testing"

func TestAppend_AssignsMonotonicIDs(t *testing.T) {
	h := New()
	a := h.Append("hello", "en-US", SlotA, false)
	b := h.Append("你好", "zh-HK", SlotA, true)
	if a.ID != 0 || b.ID != 1 {
		t.Fatalf("ids: got %d, %d", a.ID, b.ID)
	}
	if !b.IsTranslation || b.SpeakerSlot != SlotA {
		t.Fatalf("translation turn misattributed: %+v", b)
	}
}

func TestClear_ResetsRenderKeyCounter(t *testing.T) {
	h := New()
	h.Append("one", "en-US", SlotA, false)
	h.Append("two", "en-US", SlotA, false)
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("expected empty history after clear")
	}
	again := h.Append("three", "en-US", SlotB, false)
	if again.ID != 0 {
		t.Fatalf("render key counter not reset: got %d", again.ID)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	h := New()
	h.Append("one", "en-US", SlotA, false)
	snap := h.Snapshot()
	snap[0].Text = "mutated"
	if h.Snapshot()[0].Text != "one" {
		t.Fatalf("snapshot must not alias internal storage")
	}
}

func TestSlot_DirectionAndOther(t *testing.T) {
	if SlotA.Direction() != "A_to_B" || SlotB.Direction() != "B_to_A" {
		t.Fatalf("direction tags wrong")
	}
	if SlotA.Other() != SlotB || SlotB.Other() != SlotA {
		t.Fatalf("other slot wrong")
	}
}
