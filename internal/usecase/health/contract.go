package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// KnowledgeBase reports the loaded snapshot size.
type KnowledgeBase interface {
	Len() int
}
