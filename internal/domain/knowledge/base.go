package knowledge

import (
	"fmt"

	"github.com/kailas-cloud/agrirag/internal/domain"
)

// Base is the read-only document collection. Safe for concurrent reads.
type Base struct {
	docs      []Document
	byID      map[string]int
	dimension int
}

// NewBase checks id uniqueness and a single embedding dimension across documents.
// Documents without an embedding are kept but never match by similarity.
func NewBase(docs []Document) (*Base, error) {
	b := &Base{docs: docs, byID: make(map[string]int, len(docs))}
	for i := range docs {
		d := &docs[i]
		if _, dup := b.byID[d.id]; dup {
			return nil, fmt.Errorf("duplicate document id %q: %w", d.id, domain.ErrKnowledgeBaseInvalid)
		}
		b.byID[d.id] = i
		if n := len(d.embedding); n > 0 {
			switch {
			case b.dimension == 0:
				b.dimension = n
			case b.dimension != n:
				return nil, fmt.Errorf("document %q has dimension %d, expected %d: %w",
					d.id, n, b.dimension, domain.ErrKnowledgeBaseInvalid)
			}
		}
	}
	return b, nil
}

// Len returns the number of documents.
func (b *Base) Len() int { return len(b.docs) }

// Dimension returns the embedding dimension, 0 when no document has a vector.
func (b *Base) Dimension() int { return b.dimension }

// At returns the document at position i in load order.
func (b *Base) At(i int) *Document { return &b.docs[i] }

// Get returns a document by id.
func (b *Base) Get(id string) (*Document, bool) {
	i, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return &b.docs[i], true
}

// Position returns the load-order index of id, or -1.
func (b *Base) Position(id string) int {
	if i, ok := b.byID[id]; ok {
		return i
	}
	return -1
}
