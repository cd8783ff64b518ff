package agrirag

import "time"

// Document is one knowledge base entry for WithDocuments.
// Tags is the raw comma-separated "type:value" list.
type Document struct {
	ID          string
	Question    string
	AltQuestion string
	Answer      string
	Category    string
	Tags        string
	EntityType  string
	Embedding   []float32
}

// Tags is an extracted tag set. A document matches Must when it carries
// at least one of its tags; Any only boosts ranking.
type Tags struct {
	Must []string
	Any  []string
}

// TagAnalysis is the tag set of a query plus the vocabulary entries behind it.
type TagAnalysis struct {
	Tags Tags
	// Mode names how chemicals were inferred: pest, weed, disease, crop or none.
	Mode              string
	Crops             []string
	Pests             []string
	Weeds             []string
	Diseases          []string
	Products          []string
	Brands            []string
	Mechanisms        []string
	Formulations      []string
	Formulas          []string
	DirectChemicals   []string
	InferredChemicals []string
}

// Hit is one retrieved document with its scores and provenance.
type Hit struct {
	ID          string
	Question    string
	AltQuestion string
	Answer      string
	Category    string
	Tags        []string

	Similarity float64
	TagScore   int
	Score      float64
	Stage      string

	OriginQuery  string
	Hop          int
	RecoveryMode string
	// SolutionSlot is set on hits added to fill a missing answer slot.
	SolutionSlot string
}

// HopRecord is one entry of the retrieval audit trail.
type HopRecord struct {
	Index      int
	Query      string
	HitCount   int
	StopReason string
	Reason     string
	SearchMode string
}

// Completeness summarizes the gap check, targeted retrieval and
// knowledge fallback of a run.
type Completeness struct {
	Complete       bool
	MissingSlots   []string
	Reason         string
	Completion     string
	RemainingSlots []string
	AddedHits      int
	Fallback       string
}

// Usage counts provider calls made for one request.
type Usage struct {
	EmbeddingTokens int
	EmbeddingCalls  int
	OracleTokens    int
	OracleCalls     int
}

// AnswerPolicy tells answer generation how to shape its reply.
type AnswerPolicy struct {
	// Intent is one of formula, listing, procedure, disease, product,
	// registry or general.
	Intent           string
	Format           string
	RequireGrounding bool
	MaxSources       int
}

// Result is the verified evidence for one query.
type Result struct {
	RunID          string
	Query          string
	EffectiveQuery string
	Rewritten      bool
	// NormalizedQuery is the query after spelling and diacritics repair.
	NormalizedQuery string

	// Route is "rag" for catalog evidence or "global" for general
	// knowledge answered without retrieval.
	Route       string
	RouteReason string
	Policy      AnswerPolicy
	// MemoryPrompt carries long-term facts about the user, if any.
	MemoryPrompt string

	Tags        Tags
	IsListing   bool
	FormulaMode bool

	Hits []Hit
	// Context is the evidence text handed to answer generation.
	Context string
	// SystemOverride, when set, must be appended to the generation prompt.
	SystemOverride string
	NoData         bool

	Hops         []HopRecord
	StopReason   string
	Recovered    bool
	Confidence   float64
	Completeness Completeness
	Usage        Usage
}

// Turn is one message of a conversation.
type Turn struct {
	Role    string
	Content string
	At      time.Time
}
