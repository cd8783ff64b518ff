package tag

import (
	"slices"
	"strings"
)

// Namespaces used as tag prefixes.
const (
	Crop        = "crop"
	Pest        = "pest"
	Weed        = "weed"
	Disease     = "disease"
	Chemical    = "chemical"
	Product     = "product"
	Brand       = "brand"
	Mechanism   = "mechanism"
	Formulation = "formulation"
	Formula     = "formula"
)

// Make builds a namespaced tag such as "crop:lua".
func Make(namespace, key string) string {
	return namespace + ":" + key
}

// Namespace returns the prefix of a tag, or "" if it has none.
func Namespace(t string) string {
	ns, _, ok := strings.Cut(t, ":")
	if !ok {
		return ""
	}
	return ns
}

// Key returns the part after the namespace.
func Key(t string) string {
	_, key, ok := strings.Cut(t, ":")
	if !ok {
		return t
	}
	return key
}

// Set is the structured tag query extracted from free text.
//
// RequiredAny holds the "must" tags. A document passes the required filter
// when it carries at least one of them (OR, not AND). The JSON field names
// keep the historical must/any spelling.
type Set struct {
	RequiredAny []string `json:"must"`
	Any         []string `json:"any"`
}

// New returns a Set with sorted, de-duplicated, lower-cased members.
func New(required, optional []string) Set {
	return Set{RequiredAny: normalize(required), Any: normalize(optional)}
}

// IsEmpty reports whether the set has no tags at all.
func (s Set) IsEmpty() bool {
	return len(s.RequiredAny) == 0 && len(s.Any) == 0
}

// All returns the sorted union of both parts.
func (s Set) All() []string {
	return normalize(append(slices.Clone(s.RequiredAny), s.Any...))
}

// Merge unions both parts with other.
func (s Set) Merge(other Set) Set {
	return New(
		append(slices.Clone(s.RequiredAny), other.RequiredAny...),
		append(slices.Clone(s.Any), other.Any...),
	)
}

// FoldRequired returns a Set whose Any holds every tag and whose RequiredAny is empty.
func (s Set) FoldRequired() Set {
	return Set{Any: s.All()}
}

// HasNamespace reports whether any tag of either part uses the namespace.
func (s Set) HasNamespace(ns string) bool {
	return s.CountNamespace(ns) > 0
}

// CountNamespace counts tags in either part with the given namespace.
func (s Set) CountNamespace(ns string) int {
	n := 0
	for _, t := range s.All() {
		if Namespace(t) == ns {
			n++
		}
	}
	return n
}

// Equal reports element-wise equality of both parts.
func (s Set) Equal(other Set) bool {
	return slices.Equal(s.RequiredAny, other.RequiredAny) && slices.Equal(s.Any, other.Any)
}

func normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
