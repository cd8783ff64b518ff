package tagging

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/domain/vocabulary"
)

// InferenceMode tells which evidence produced inferred chemicals.
type InferenceMode string

// Inference modes in priority order.
const (
	InferWeed    InferenceMode = "weed"
	InferPest    InferenceMode = "pest"
	InferDisease InferenceMode = "disease"
	InferCrop    InferenceMode = "crop"
	InferNone    InferenceMode = "none"
)

// Found is the explainable breakdown behind an extracted tag set.
type Found struct {
	Crops             []string      `json:"crops,omitempty"`
	Pests             []string      `json:"pests,omitempty"`
	Weeds             []string      `json:"weeds,omitempty"`
	Diseases          []string      `json:"diseases,omitempty"`
	Products          []string      `json:"products,omitempty"`
	Brands            []string      `json:"brands,omitempty"`
	Mechanisms        []string      `json:"mechanisms,omitempty"`
	Formulations      []string      `json:"formulations,omitempty"`
	Formulas          []string      `json:"formulas,omitempty"`
	DirectChemicals   []string      `json:"chemicals_direct,omitempty"`
	InferredChemicals []string      `json:"chemicals_inferred,omitempty"`
	Mode              InferenceMode `json:"kb_mode"`
}

// Result pairs the tag set with its breakdown.
type Result struct {
	Tags  tag.Set `json:"tags"`
	Found Found   `json:"found"`
}

type alias struct {
	key  string
	form string
}

type chemicalProfile struct {
	crops, pests, weeds, diseases, formulations map[string]struct{}
}

// Extractor turns free text into a tag.Set. It holds only precomputed,
// read-only tables, so one instance serves all requests.
type Extractor struct {
	entity     map[string][]alias // namespace -> aliases normalized as entities
	chemicals  []alias            // normalized with NormalizeChemical
	mechanisms []alias            // longest form first
	profiles   map[string]chemicalProfile
	profileIDs []string // sorted chemical keys
	triggers   []string
}

// NewExtractor precomputes normalized alias tables from voc.
func NewExtractor(voc *vocabulary.Vocabulary) *Extractor {
	e := &Extractor{
		entity:   make(map[string][]alias),
		profiles: make(map[string]chemicalProfile, len(voc.Chemicals)),
		triggers: voc.FormulaTriggers,
	}
	for _, ns := range []string{
		tag.Crop, tag.Pest, tag.Weed, tag.Disease, tag.Product,
		tag.Brand, tag.Formulation, tag.Formula,
	} {
		e.entity[ns] = compile(voc.Table(ns), NormalizeEntity)
	}
	e.chemicals = compile(voc.Table(tag.Chemical), NormalizeChemical)
	e.mechanisms = compile(voc.Table(tag.Mechanism), NormalizeEntity)
	sort.SliceStable(e.mechanisms, func(i, j int) bool {
		return len(e.mechanisms[i].form) > len(e.mechanisms[j].form)
	})

	for name, p := range voc.Chemicals {
		e.profiles[name] = chemicalProfile{
			crops:        normSet(p.Crops),
			pests:        normSet(p.Pests),
			weeds:        normSet(p.Weeds),
			diseases:     normSet(p.Diseases),
			formulations: normSet(p.Formulations),
		}
	}
	e.profileIDs = slices.Sorted(maps.Keys(e.profiles))
	return e
}

// compile normalizes every surface form once; keys are visited in sorted order
// so matching is deterministic.
func compile(table map[string][]string, normalize func(string) string) []alias {
	keys := slices.Sorted(maps.Keys(table))
	out := make([]alias, 0, len(keys))
	for _, k := range keys {
		for _, form := range table[k] {
			if n := normalize(form); n != "" {
				out = append(out, alias{key: k, form: n})
			}
		}
	}
	return out
}

func normSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := NormalizeEntity(v); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// Extract returns the tag set for query. Identical input yields an identical set.
func (e *Extractor) Extract(query string) tag.Set {
	return e.Analyze(query).Tags
}

// Analyze returns the tag set together with the matched entities.
func (e *Extractor) Analyze(query string) Result {
	entityText := NormalizeEntity(query)
	chemText := NormalizeChemical(query)

	f := Found{
		Crops:        match(entityText, e.entity[tag.Crop]),
		Pests:        match(entityText, e.entity[tag.Pest]),
		Weeds:        match(entityText, e.entity[tag.Weed]),
		Diseases:     match(entityText, e.entity[tag.Disease]),
		Products:     match(entityText, e.entity[tag.Product]),
		Brands:       match(entityText, e.entity[tag.Brand]),
		Formulations: match(entityText, e.entity[tag.Formulation]),
		Formulas:     match(entityText, e.entity[tag.Formula]),
		Mechanisms:   e.matchMechanisms(entityText),
	}
	f.DirectChemicals = match(chemText, e.chemicals)

	inferred, mode := e.infer(f.Crops, f.Pests, f.Weeds, f.Diseases)
	f.Mode = mode
	f.InferredChemicals = e.filterByFormulation(inferred, f.Formulations)

	var required, optional []string
	for _, c := range f.Crops {
		optional = append(optional, tag.Make(tag.Crop, c))
	}
	for _, p := range f.Pests {
		optional = append(optional, tag.Make(tag.Pest, p))
	}
	for _, w := range f.Weeds {
		optional = append(optional, tag.Make(tag.Weed, w))
	}
	for _, d := range f.Diseases {
		optional = append(optional, tag.Make(tag.Disease, d))
	}
	for _, p := range f.Products {
		required = append(required, tag.Make(tag.Product, p))
	}
	for _, b := range f.Brands {
		required = append(required, tag.Make(tag.Brand, b))
	}
	for _, fm := range f.Formulations {
		required = append(required, tag.Make(tag.Formulation, fm))
	}
	for _, fm := range f.Formulas {
		required = append(required, tag.Make(tag.Formula, fm))
	}
	for _, m := range f.Mechanisms {
		required = append(required, tag.Make(tag.Mechanism, m))
	}
	direct := make(map[string]bool, len(f.DirectChemicals))
	for _, c := range f.DirectChemicals {
		direct[c] = true
		required = append(required, tag.Make(tag.Chemical, c))
	}
	for _, c := range f.InferredChemicals {
		if !direct[c] {
			optional = append(optional, tag.Make(tag.Chemical, c))
		}
	}

	return Result{Tags: tag.New(required, optional), Found: f}
}

// match returns the sorted keys whose any form occurs as whole words in text.
func match(text string, aliases []alias) []string {
	var keys []string
	for _, a := range aliases {
		if len(keys) > 0 && keys[len(keys)-1] == a.key {
			continue
		}
		if containsWord(text, a.form) {
			keys = append(keys, a.key)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// matchMechanisms matches longest forms first and skips forms overlapping an
// earlier match, so "tiep xuc luu dan manh" yields one mechanism, not four.
func (e *Extractor) matchMechanisms(text string) []string {
	padded := " " + text + " "
	type span struct{ start, end int }
	var used []span
	found := make(map[string]bool)

	for _, a := range e.mechanisms {
		if found[a.key] {
			continue
		}
		needle := " " + a.form + " "
		from := 0
		for {
			i := strings.Index(padded[from:], needle)
			if i < 0 {
				break
			}
			s := span{start: from + i + 1, end: from + i + len(needle) - 1}
			overlap := false
			for _, u := range used {
				if s.start < u.end && u.start < s.end {
					overlap = true
					break
				}
			}
			if !overlap {
				used = append(used, s)
				found[a.key] = true
				break
			}
			from += i + 1
		}
	}
	return slices.Sorted(maps.Keys(found))
}

// infer looks chemicals up by weed, then pest, then disease, then crop alone.
// The first non-empty result wins. When crops are named, target matches must
// also share a crop.
func (e *Extractor) infer(crops, pests, weeds, diseases []string) ([]string, InferenceMode) {
	cropSet := normSet(crops)

	byTarget := func(targets []string, field func(chemicalProfile) map[string]struct{}) []string {
		want := normSet(targets)
		if len(want) == 0 {
			return nil
		}
		var out []string
		for _, id := range e.profileIDs {
			p := e.profiles[id]
			if !intersects(want, field(p)) {
				continue
			}
			if len(cropSet) > 0 && !intersects(cropSet, p.crops) {
				continue
			}
			out = append(out, id)
		}
		return out
	}

	if out := byTarget(weeds, func(p chemicalProfile) map[string]struct{} { return p.weeds }); len(out) > 0 {
		return out, InferWeed
	}
	if out := byTarget(pests, func(p chemicalProfile) map[string]struct{} { return p.pests }); len(out) > 0 {
		return out, InferPest
	}
	if out := byTarget(diseases, func(p chemicalProfile) map[string]struct{} { return p.diseases }); len(out) > 0 {
		return out, InferDisease
	}
	if len(cropSet) > 0 {
		var out []string
		for _, id := range e.profileIDs {
			if intersects(cropSet, e.profiles[id].crops) {
				out = append(out, id)
			}
		}
		if len(out) > 0 {
			return out, InferCrop
		}
	}
	return nil, InferNone
}

// filterByFormulation keeps chemicals registered in at least one requested formulation.
func (e *Extractor) filterByFormulation(chems, forms []string) []string {
	if len(forms) == 0 {
		return chems
	}
	want := normSet(forms)
	var out []string
	for _, c := range chems {
		if intersects(want, e.profiles[c].formulations) {
			out = append(out, c)
		}
	}
	return out
}

func intersects(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// HasFormulaTrigger reports whether query uses formula phrasing ("công thức", "phối trộn", ...).
func (e *Extractor) HasFormulaTrigger(query string) bool {
	return ContainsAnyPhrase(query, e.triggers)
}

// IsFormulaQuery reports whether the query asks to combine mechanisms:
// a mechanism tag plus either a '+' in the text or two or more mechanism tags.
func IsFormulaQuery(query string, tags tag.Set) bool {
	n := tags.CountNamespace(tag.Mechanism)
	if n == 0 {
		return false
	}
	return strings.Contains(query, "+") || n >= 2
}
