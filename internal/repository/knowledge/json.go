package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
)

// Column keys of the parallel-array snapshot. Alternatives are accepted in order.
var (
	keyIDs          = []string{"ids", "id"}
	keyQuestions    = []string{"questions"}
	keyAltQuestions = []string{"alt_questions"}
	keyAnswers      = []string{"answers"}
	keyCategory     = []string{"category"}
	keyTags         = []string{"tags"}
	keyTagsV2       = []string{"tags_v2", "TAGS_V2"}
	keyEntityType   = []string{"entity_type", "ENTITY_TYPE"}
	keyEmbeddings   = []string{"embeddings"}
)

// ParseJSON decodes a snapshot of parallel arrays. ids is mandatory; every
// present column must have one entry per id. Absent columns stay empty.
// Tag cells may be a string or a list of strings.
func ParseJSON(data []byte) ([]knowledge.Fields, error) {
	var cols map[string]json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w: %w", domain.ErrKnowledgeBaseInvalid, err)
	}

	raw, key, ok := column(cols, keyIDs)
	if !ok {
		return nil, fmt.Errorf("missing ids column: %w", domain.ErrKnowledgeBaseInvalid)
	}
	ids, err := decodeStrings(raw, key)
	if err != nil {
		return nil, err
	}
	n := len(ids)

	rows := make([]knowledge.Fields, n)
	for i, id := range ids {
		rows[i].ID = id
	}

	textCols := []struct {
		keys []string
		set  func(f *knowledge.Fields, v string)
	}{
		{keyQuestions, func(f *knowledge.Fields, v string) { f.Question = v }},
		{keyAltQuestions, func(f *knowledge.Fields, v string) { f.AltQuestion = v }},
		{keyAnswers, func(f *knowledge.Fields, v string) { f.Answer = v }},
		{keyCategory, func(f *knowledge.Fields, v string) { f.Category = v }},
		{keyTags, func(f *knowledge.Fields, v string) { f.Tags = v }},
		{keyTagsV2, func(f *knowledge.Fields, v string) { f.TagsV2 = v }},
		{keyEntityType, func(f *knowledge.Fields, v string) { f.EntityType = v }},
	}
	for _, c := range textCols {
		raw, key, ok := column(cols, c.keys)
		if !ok {
			continue
		}
		vals, err := decodeStrings(raw, key)
		if err != nil {
			return nil, err
		}
		if len(vals) != n {
			return nil, lengthMismatch(key, len(vals), n)
		}
		for i, v := range vals {
			c.set(&rows[i], v)
		}
	}

	if raw, key, ok := column(cols, keyEmbeddings); ok {
		var vecs [][]float32
		if err := json.Unmarshal(raw, &vecs); err != nil {
			return nil, fmt.Errorf("decode %s: %w: %w", key, domain.ErrKnowledgeBaseInvalid, err)
		}
		if len(vecs) != n {
			return nil, lengthMismatch(key, len(vecs), n)
		}
		for i, v := range vecs {
			rows[i].Embedding = v
		}
	}

	return rows, nil
}

func column(cols map[string]json.RawMessage, keys []string) (json.RawMessage, string, bool) {
	for _, k := range keys {
		if raw, ok := cols[k]; ok && string(raw) != "null" {
			return raw, k, true
		}
	}
	return nil, "", false
}

// decodeStrings accepts cells that are strings, null, numbers or string lists.
func decodeStrings(raw json.RawMessage, key string) ([]string, error) {
	var cells []json.RawMessage
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", key, domain.ErrKnowledgeBaseInvalid, err)
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		v, err := cellString(c)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w: %w", key, i, domain.ErrKnowledgeBaseInvalid, err)
		}
		out[i] = v
	}
	return out, nil
}

func cellString(c json.RawMessage) (string, error) {
	switch {
	case len(c) == 0 || string(c) == "null":
		return "", nil
	case c[0] == '"':
		var s string
		err := json.Unmarshal(c, &s)
		return s, err
	case c[0] == '[':
		var list []string
		if err := json.Unmarshal(c, &list); err != nil {
			return "", err
		}
		return strings.Join(list, ","), nil
	default:
		var num json.Number
		err := json.Unmarshal(c, &num)
		return num.String(), err
	}
}

func lengthMismatch(key string, got, want int) error {
	return fmt.Errorf("column %s has %d entries, ids has %d: %w", key, got, want, domain.ErrKnowledgeBaseInvalid)
}
