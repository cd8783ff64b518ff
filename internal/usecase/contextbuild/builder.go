// Package contextbuild decides how many documents reach the answer context
// and renders them into the prompt block.
package contextbuild

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// NoDataMessage is the context returned when no evidence was found.
const NoDataMessage = "Không tìm thấy dữ liệu phù hợp trong hệ thống."

const separator = "\n\n--------------------\n\n"

// Default document budgets.
const (
	DefaultMaxStrict    = 40
	DefaultMaxSoft      = 32
	DefaultMaxListing   = 30
	DefaultMaxReasoning = 24
)

// Budgets caps the number of documents in the context per answer mode.
type Budgets struct {
	MaxStrict    int
	MaxSoft      int
	MaxListing   int
	MaxReasoning int
}

// Selector picks the document budget for a query.
type Selector struct {
	budgets Budgets
	listing []string
}

// NewSelector creates a budget selector with the listing keyword table.
func NewSelector(b Budgets, listingKeywords []string) *Selector {
	if b.MaxStrict <= 0 {
		b.MaxStrict = DefaultMaxStrict
	}
	if b.MaxSoft <= 0 {
		b.MaxSoft = DefaultMaxSoft
	}
	if b.MaxListing <= 0 {
		b.MaxListing = DefaultMaxListing
	}
	if b.MaxReasoning <= 0 {
		b.MaxReasoning = DefaultMaxReasoning
	}
	return &Selector{budgets: b, listing: listingKeywords}
}

// IsListing reports whether the query asks to enumerate things.
func (s *Selector) IsListing(query string) bool {
	return tagging.ContainsAnyPhrase(query, s.listing)
}

// Budget returns min(global max, mode budget).
func (s *Selector) Budget(isListing bool) int {
	mode := s.budgets.MaxReasoning
	if isListing {
		mode = s.budgets.MaxListing
	}
	return min(s.budgets.MaxStrict, mode)
}

// SoftBudget is the budget of formula mode.
func (s *Selector) SoftBudget() int {
	return min(s.budgets.MaxStrict, s.budgets.MaxSoft)
}

// Select truncates ranked hits to n.
func Select(hits []hit.Hit, n int) []hit.Hit {
	if n < 0 || len(hits) <= n {
		return hits
	}
	return hits[:n]
}

// Build renders hits as numbered document blocks.
func Build(hits []hit.Hit) string {
	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		var b strings.Builder
		b.WriteString("[DOC ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]\nCÂU HỎI: ")
		b.WriteString(h.Doc.Question())
		b.WriteString("\nHỎI KHÁC: ")
		b.WriteString(h.Doc.AltQuestion())
		b.WriteString("\nNỘI DUNG:\n")
		b.WriteString(h.Doc.Answer())
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, separator)
}
