// Package routing decides whether a query is answered from the knowledge
// base (RAG) or from general agronomy knowledge (GLOBAL).
package routing

import (
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/domain/vocabulary"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// Route is a routing destination.
type Route string

// Routes.
const (
	RAG    Route = "rag"
	Global Route = "global"
)

// Reasons reported with a decision.
const (
	ReasonFormula      = "formula_trigger"
	ReasonCompany      = "company"
	ReasonProduct      = "product_context"
	ReasonDefinition   = "definition"
	ReasonTreatment    = "treatment"
	ReasonCatalogTag   = "catalog_tag"
	ReasonChemicalOnly = "chemical_knowledge"
	ReasonDefaultRAG   = "default"
)

// Decision is a route with the rule that produced it.
type Decision struct {
	Route  Route  `json:"route"`
	Reason string `json:"reason"`
}

// GlobalSystemPrompt steers generation for GLOBAL answers.
const GlobalSystemPrompt = `Bạn là chuyên gia BVTV/nông học tại Việt Nam. Trả lời theo phong cách giáo trình, chính xác, mạch lạc.
Phân biệt điều phổ quát, điều phụ thuộc bối cảnh (cây, giai đoạn, thời tiết, áp lực dịch hại) và điều cần thêm dữ liệu.
Cấu trúc: tóm tắt nhanh, khái niệm cốt lõi, đặc điểm nhận biết, cơ chế nếu liên quan, ví dụ trong canh tác Việt Nam,
sai lầm thường gặp, câu hỏi cần làm rõ. Không bịa tên loài hay tên thương mại; thiếu cơ sở thì nói rõ cần xác minh.`

// Router applies the phrase rules of a vocabulary.
type Router struct {
	r vocabulary.Routing
}

// New creates a router.
func New(r vocabulary.Routing) *Router {
	return &Router{r: r}
}

// Decide routes query. formulaIntent and analysis come from the tag
// extractor, so the router never re-extracts.
func (rt *Router) Decide(query string, formulaIntent bool, analysis tagging.Result) Decision {
	switch {
	case formulaIntent:
		return Decision{RAG, ReasonFormula}
	case tagging.ContainsAnyPhrase(query, rt.r.Company):
		return Decision{RAG, ReasonCompany}
	case tagging.ContainsAnyPhrase(query, rt.r.Product):
		return Decision{RAG, ReasonProduct}
	case tagging.ContainsAnyPhrase(query, rt.r.Global):
		return Decision{Global, ReasonDefinition}
	case tagging.ContainsAnyPhrase(query, rt.r.Treatment):
		return Decision{RAG, ReasonTreatment}
	case hasCatalogTag(analysis.Tags):
		return Decision{RAG, ReasonCatalogTag}
	case len(analysis.Found.DirectChemicals) > 0 && !tagging.ContainsAnyPhrase(query, rt.r.ProductIntent):
		return Decision{Global, ReasonChemicalOnly}
	}
	return Decision{RAG, ReasonDefaultRAG}
}

// hasCatalogTag reports a brand or product tag, which only the knowledge base can answer.
func hasCatalogTag(s tag.Set) bool {
	for _, t := range s.All() {
		switch tag.Namespace(t) {
		case tag.Brand, tag.Product:
			return true
		}
	}
	return false
}
