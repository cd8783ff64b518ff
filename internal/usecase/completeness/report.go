package completeness

import "github.com/kailas-cloud/agrirag/internal/domain/slot"

// T4 decisions.
const (
	T4Skipped        = "skipped"
	T4Disabled       = "disabled"
	T4AlreadyCovered = "KB_already_contains_slots"
	T4NoIntents      = "no_intents"
	T4Retrieved      = "retrieved"
	T4NothingAdded   = "nothing_added"
)

// T5 decisions.
const (
	T5NotNeeded = "not_needed"
	T5Injected  = "injected"
	T5Empty     = "empty"
)

// L3Report is the gap detector verdict on the draft.
type L3Report struct {
	IsComplete   bool        `json:"is_complete"`
	MissingSlots []slot.Slot `json:"missing_slots"`
	Reason       string      `json:"reason"`
	DraftChars   int         `json:"draft_chars"`
	OracleFailed bool        `json:"oracle_failed,omitempty"`
}

// Intent is one slot-targeted retrieval of T4.
type Intent struct {
	Slot  slot.Slot `json:"slot"`
	Query string    `json:"query"`
	Added int       `json:"added"`
}

// T4Report describes solution completion.
type T4Report struct {
	Decision       string      `json:"decision"`
	CoveredSlots   []slot.Slot `json:"covered_slots,omitempty"`
	Intents        []Intent    `json:"intents,omitempty"`
	AddedHits      int         `json:"added_hits"`
	RemainingSlots []slot.Slot `json:"remaining_slots"`
}

// T5Report describes the knowledge fallback.
type T5Report struct {
	Decision string      `json:"decision"`
	Slots    []slot.Slot `json:"slots,omitempty"`
	Chars    int         `json:"chars"`
}

// Report collects every stage decision of one run.
type Report struct {
	L3 L3Report `json:"l3"`
	T4 T4Report `json:"t4"`
	T5 T5Report `json:"t5"`
}
