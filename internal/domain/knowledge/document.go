package knowledge

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// Document is one knowledge base entry (immutable value object).
type Document struct {
	id          string
	question    string
	altQuestion string
	answer      string
	category    string
	rawTags     string
	rawTagsV2   string
	entityType  string
	embedding   []float32
	norm        float64
	tags        []string
	tagIndex    map[string]struct{}
}

// Fields carries the raw column values of one row.
type Fields struct {
	ID          string
	Question    string
	AltQuestion string
	Answer      string
	Category    string
	Tags        string
	TagsV2      string
	EntityType  string
	Embedding   []float32
}

// New validates a row and precomputes its parsed tags and vector norm.
// TagsV2 wins over Tags when both are present.
func New(f Fields) (Document, error) {
	if strings.TrimSpace(f.ID) == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	raw := f.TagsV2
	if strings.TrimSpace(raw) == "" {
		raw = f.Tags
	}
	tags := ParseTags(raw)
	idx := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		idx[t] = struct{}{}
	}
	return Document{
		id:          f.ID,
		question:    f.Question,
		altQuestion: f.AltQuestion,
		answer:      f.Answer,
		category:    f.Category,
		rawTags:     f.Tags,
		rawTagsV2:   f.TagsV2,
		entityType:  f.EntityType,
		embedding:   f.Embedding,
		norm:        vectorNorm(f.Embedding),
		tags:        tags,
		tagIndex:    idx,
	}, nil
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Question returns the canonical question.
func (d *Document) Question() string { return d.question }

// AltQuestion returns the alternate phrasing.
func (d *Document) AltQuestion() string { return d.altQuestion }

// Answer returns the answer text.
func (d *Document) Answer() string { return d.answer }

// Category returns the optional category.
func (d *Document) Category() string { return d.category }

// RawTags returns the raw legacy tags column.
func (d *Document) RawTags() string { return d.rawTags }

// RawTagsV2 returns the raw v2 tags column.
func (d *Document) RawTagsV2() string { return d.rawTagsV2 }

// EntityType returns the optional entity type.
func (d *Document) EntityType() string { return d.entityType }

// Embedding returns the document vector.
func (d *Document) Embedding() []float32 { return d.embedding }

// Tags returns the parsed, sorted tag list.
func (d *Document) Tags() []string { return d.tags }

// HasTag reports whether the document carries the tag.
func (d *Document) HasTag(t string) bool {
	_, ok := d.tagIndex[t]
	return ok
}

// HasTagPrefix reports whether any tag starts with prefix.
func (d *Document) HasTagPrefix(prefix string) bool {
	for _, t := range d.tags {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// Cosine returns the cosine similarity between the document vector and q.
// qNorm is the precomputed norm of q. Zero vectors score 0.
func (d *Document) Cosine(q []float32, qNorm float64) float64 {
	if d.norm == 0 || qNorm == 0 {
		return 0
	}
	var dot float64
	for i, v := range d.embedding {
		dot += float64(v) * float64(q[i])
	}
	return dot / (d.norm * qNorm)
}

// VectorNorm returns the Euclidean norm of v.
func VectorNorm(v []float32) float64 { return vectorNorm(v) }

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// ParseTags turns a raw tag cell into a sorted, lower-cased tag list.
// Accepted shapes: JSON list, pipe-separated, comma-separated, single tag.
func ParseTags(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return nil
	}
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	var parts []string
	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		var arr []string
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, `""`, `"`)), &arr); err == nil {
			parts = arr
		} else {
			parts = strings.Split(s[1:len(s)-1], ",")
		}
	case strings.Contains(s, "|"):
		parts = strings.Split(s, "|")
	case strings.Contains(s, ","):
		parts = strings.Split(s, ",")
	default:
		parts = []string{s}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.Trim(strings.TrimSpace(p), `"'`))
		if p != "" {
			out = append(out, canonicalNamespace(p))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// namespaceAliases maps legacy snapshot prefixes to the extractor's namespaces.
var namespaceAliases = map[string]string{
	"mechanisms": tag.Mechanism,
}

func canonicalNamespace(t string) string {
	ns, key, ok := strings.Cut(t, ":")
	if !ok {
		return t
	}
	if canon, found := namespaceAliases[ns]; found {
		return tag.Make(canon, key)
	}
	return t
}
