package vocabulary

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// Vocabulary is the static domain data behind tag extraction,
// listing detection and completeness checks.
type Vocabulary struct {
	// Aliases maps namespace -> canonical key -> surface forms.
	Aliases           map[string]map[string][]string `yaml:"aliases"`
	Chemicals         map[string]ChemicalProfile     `yaml:"chemicals"`
	ListingKeywords   []string                       `yaml:"listing_keywords"`
	ReferencePatterns []string                       `yaml:"reference_patterns"`
	FormulaTriggers   []string                       `yaml:"formula_triggers"`
	SlotCoverage      map[slot.Slot][]string         `yaml:"slot_coverage"`
	SlotQueries       map[slot.Slot]string           `yaml:"slot_queries"`
	Routing           Routing                        `yaml:"routing"`
	Policy            PolicyKeywords                 `yaml:"policy"`
}

// Routing holds the phrase lists that send a query to the knowledge base
// (RAG) or to general knowledge (GLOBAL).
type Routing struct {
	Company       []string `yaml:"company"`
	Product       []string `yaml:"product"`
	Global        []string `yaml:"global"`
	Treatment     []string `yaml:"treatment"`
	ProductIntent []string `yaml:"product_intent"`
}

// IsZero reports whether no routing phrase is configured.
func (r Routing) IsZero() bool {
	return len(r.Company)+len(r.Product)+len(r.Global)+len(r.Treatment)+len(r.ProductIntent) == 0
}

// PolicyKeywords are the keyword heuristics of the answer policy.
type PolicyKeywords struct {
	Formula   []string `yaml:"formula"`
	Registry  []string `yaml:"registry"`
	Procedure []string `yaml:"procedure"`
	Disease   []string `yaml:"disease"`
	Product   []string `yaml:"product"`
}

// IsZero reports whether no policy keyword is configured.
func (p PolicyKeywords) IsZero() bool {
	return len(p.Formula)+len(p.Registry)+len(p.Procedure)+len(p.Disease)+len(p.Product) == 0
}

// ChemicalProfile lists what a chemical is registered against.
type ChemicalProfile struct {
	Crops        []string `yaml:"crops"`
	Pests        []string `yaml:"pests"`
	Weeds        []string `yaml:"weeds"`
	Diseases     []string `yaml:"diseases"`
	Formulations []string `yaml:"formulations"`
}

var knownNamespaces = []string{
	tag.Crop, tag.Pest, tag.Weed, tag.Disease, tag.Chemical,
	tag.Product, tag.Brand, tag.Mechanism, tag.Formulation, tag.Formula,
}

// Validate rejects unknown namespaces and slots.
func (v *Vocabulary) Validate() error {
	for ns := range v.Aliases {
		if !slices.Contains(knownNamespaces, ns) {
			return fmt.Errorf("unknown alias namespace %q", ns)
		}
	}
	for s := range v.SlotCoverage {
		if !s.IsValid() {
			return fmt.Errorf("unknown slot %q in slot_coverage", s)
		}
	}
	for s := range v.SlotQueries {
		if !s.IsValid() {
			return fmt.Errorf("unknown slot %q in slot_queries", s)
		}
	}
	return nil
}

// Table returns the alias table of a namespace (nil if absent).
func (v *Vocabulary) Table(namespace string) map[string][]string {
	return v.Aliases[namespace]
}
