// Package policy decides how an answer should be shaped from the query and
// the top retrieved document, and gates disease evidence by tag overlap.
package policy

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/vocabulary"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// Intent is the kind of knowledge the answer conveys.
type Intent string

// Intents.
const (
	IntentFormula   Intent = "formula"
	IntentListing   Intent = "listing"
	IntentProcedure Intent = "procedure"
	IntentDisease   Intent = "disease"
	IntentProduct   Intent = "product"
	IntentRegistry  Intent = "registry"
	IntentGeneral   Intent = "general"
)

// Format is the presentation the generator should use.
type Format string

// Formats.
const (
	FormatStructured Format = "structured"
	FormatListing    Format = "listing"
	FormatSteps      Format = "steps"
	FormatBullets    Format = "bullets"
	FormatTable      Format = "table"
	FormatVerbatim   Format = "verbatim"
	FormatShort      Format = "short"
)

// Policy tells the generation layer what to produce and from how many sources.
type Policy struct {
	Intent           Intent `json:"intent"`
	Format           Format `json:"format"`
	RequireGrounding bool   `json:"require_grounding"`
	MaxSources       int    `json:"max_sources"`
}

// GatesEvidence reports whether base hits must pass the tag evidence gate.
func (p Policy) GatesEvidence() bool { return p.Intent == IntentDisease }

var (
	formula   = Policy{Intent: IntentFormula, Format: FormatStructured, RequireGrounding: true, MaxSources: 15}
	listing   = Policy{Intent: IntentListing, Format: FormatListing, RequireGrounding: true, MaxSources: 50}
	procedure = Policy{Intent: IntentProcedure, Format: FormatSteps, RequireGrounding: true, MaxSources: 12}
	disease   = Policy{Intent: IntentDisease, Format: FormatBullets, RequireGrounding: true, MaxSources: 10}
	product   = Policy{Intent: IntentProduct, Format: FormatTable, RequireGrounding: true, MaxSources: 10}
	registry  = Policy{Intent: IntentRegistry, Format: FormatVerbatim, RequireGrounding: true, MaxSources: 8}
	general   = Policy{Intent: IntentGeneral, Format: FormatShort, RequireGrounding: true, MaxSources: 8}
)

// byEntityType maps a document's entity_type to its policy.
var byEntityType = map[string]Policy{
	"procedure": procedure,
	"process":   procedure,
	"quy_trinh": procedure,
	"disease":   disease,
	"benh":      disease,
	"product":   product,
	"chemical":  product,
	"san_pham":  product,
	"thuoc":     product,
	"registry":  registry,
	"dang_ky":   registry,
	"faq":       general,
	"general":   general,
}

const boundary = `(?:^|[^\p{L}\p{N}])`
const boundaryEnd = `(?:[^\p{L}\p{N}]|$)`

var (
	formulationRe = regexp.MustCompile(`(?i)` + boundary + `(?:ec|sc|wp|sl|wg|wdg|gr|df)` + boundaryEnd)
	dosageRe      = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:ml|lít|lit|l|gr|g|kg|ppm|%|cc)` + boundaryEnd)
	stepRe        = regexp.MustCompile(`(?i)(?:bước\s*\d+|step\s*\d+|` + boundary + `\d+\s*[).]\s)`)
)

// Decider picks an answer policy.
type Decider struct {
	kw vocabulary.PolicyKeywords
}

// NewDecider creates a decider over the keyword lists of voc.
func NewDecider(kw vocabulary.PolicyKeywords) *Decider {
	return &Decider{kw: kw}
}

// Decide returns the policy for query. Formula phrasing wins, then listing,
// then the top document's entity type, then keyword heuristics over the
// query and the top document. primary may be nil.
func (d *Decider) Decide(query string, primary *knowledge.Document, isListing bool) Policy {
	if tagging.ContainsAnyPhrase(query, d.kw.Formula) {
		return formula
	}
	if isListing {
		return listing
	}

	text := query
	if primary != nil {
		if p, ok := byEntityType[strings.ToLower(strings.TrimSpace(primary.EntityType()))]; ok {
			return p
		}
		text = strings.Join([]string{query, primary.Question(), primary.Answer()}, " ")
	}

	switch {
	case tagging.ContainsAnyPhrase(text, d.kw.Registry):
		return registry
	case stepRe.MatchString(text) || tagging.ContainsAnyPhrase(text, d.kw.Procedure):
		return procedure
	case tagging.ContainsAnyPhrase(text, d.kw.Disease):
		return disease
	case formulationRe.MatchString(text) || dosageRe.MatchString(text) ||
		tagging.ContainsAnyPhrase(text, d.kw.Product):
		return product
	}
	return general
}
