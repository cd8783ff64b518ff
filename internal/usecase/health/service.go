package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates that retrieval cannot work at all.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as report keys.
const (
	ComponentDatabase  = "database"
	ComponentEmbedding = "embedding"
	ComponentOracle    = "oracle"
	ComponentKnowledge = "knowledge_base"
)

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Documents int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	kb        KnowledgeBase
	embedding ProviderChecker
	oracle    ProviderChecker
}

// New creates a Service. db, embedding and oracle can be nil.
func New(db DBPinger, kb KnowledgeBase, embedding, oracle ProviderChecker) *Service {
	return &Service{db: db, kb: kb, embedding: embedding, oracle: oracle}
}

// Check runs health checks against all components.
// An empty knowledge base is unhealthy; any other failure degrades.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		checks[ComponentDatabase] = result(s.db.Ping(ctx))
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = result(s.embedding.HealthCheck(ctx))
	}
	if s.oracle != nil {
		checks[ComponentOracle] = result(s.oracle.HealthCheck(ctx))
	}

	docs := 0
	if s.kb != nil {
		docs = s.kb.Len()
	}
	if docs == 0 {
		checks[ComponentKnowledge] = CheckError
		return Report{Status: Unhealthy, Checks: checks}
	}
	checks[ComponentKnowledge] = CheckOK

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Documents: docs}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
