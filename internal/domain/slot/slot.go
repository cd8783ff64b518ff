package slot

// Slot is a named category of information missing from a draft answer.
type Slot string

// The closed slot vocabulary.
const (
	Pesticide        Slot = "need_pesticide"
	FoliarFertilizer Slot = "need_foliar_fertilizer"
	MixCompatibility Slot = "need_mix_compatibility"
	DosageOrRate     Slot = "need_dosage_or_rate"
	Timing           Slot = "need_timing"
	Crop             Slot = "need_crop"
	PestOrDisease    Slot = "need_pest_or_disease"
	GeneralKnowledge Slot = "need_general_knowledge"
)

// All lists every slot in canonical order.
var All = []Slot{
	Pesticide, FoliarFertilizer, MixCompatibility, DosageOrRate,
	Timing, Crop, PestOrDisease, GeneralKnowledge,
}

// IsValid checks if the slot belongs to the closed vocabulary.
func (s Slot) IsValid() bool {
	for _, v := range All {
		if v == s {
			return true
		}
	}
	return false
}

// Parse keeps known slots in first-seen order and drops unknown or repeated ones.
func Parse(raw []string) []Slot {
	out := make([]Slot, 0, len(raw))
	seen := make(map[Slot]bool, len(raw))
	for _, r := range raw {
		s := Slot(r)
		if !s.IsValid() || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Intersects reports whether any of slots is in set.
func Intersects(slots []Slot, set map[Slot]bool) bool {
	for _, s := range slots {
		if set[s] {
			return true
		}
	}
	return false
}

// Strings converts slots to their wire form.
func Strings(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}

// Report is the gap detector verdict.
type Report struct {
	IsComplete   bool   `json:"is_complete"`
	MissingSlots []Slot `json:"missing_slots"`
	Reason       string `json:"reason"`
}
