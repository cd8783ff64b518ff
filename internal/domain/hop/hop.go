package hop

// StopReason explains why the multi-hop loop halted at a hop.
type StopReason string

// Stop reasons.
const (
	None             StopReason = ""
	NoMustAnchor     StopReason = "no_must_anchor"
	NoHitsInHop1     StopReason = "no_hits_in_hop1"
	EnoughDocs       StopReason = "enough_docs"
	LLMStop          StopReason = "llm_stop"
	RepeatQuery      StopReason = "repeat_query_blocked"
	NoNewDocsAdded   StopReason = "no_new_docs_added"
	MaxHops          StopReason = "max_hops"
	Cancelled        StopReason = "cancelled"
	RecoveryFinished StopReason = "recovery_finished"
)

// IntentHint is the optional oracle view of the user's target, kept for audit.
type IntentHint struct {
	PrimaryTarget   string   `json:"primary_target"`
	FallbackTargets []string `json:"fallback_targets"`
}

// Record is one append-only entry of the hop audit trail.
type Record struct {
	Index      int         `json:"hop"`
	Query      string      `json:"query"`
	HitCount   int         `json:"hit_count"`
	StopReason StopReason  `json:"stop_reason,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	SearchMode string      `json:"search_mode,omitempty"`
	Intent     *IntentHint `json:"intent,omitempty"`
}

// Trail is the ordered hop history of one run.
type Trail []Record

// Last returns a pointer to the final record, or nil when empty.
func (t Trail) Last() *Record {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Final returns the stop reason of the last record.
func (t Trail) Final() StopReason {
	if r := t.Last(); r != nil {
		return r.StopReason
	}
	return None
}
