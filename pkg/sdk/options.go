package agrirag

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	kbPath    string
	documents []Document
	vocabPath string

	embedder    Embedder
	oracle      Oracle
	openAI      *OpenAIConfig
	instruction string

	addrs           []string
	password        string
	historyTurns    int
	conversationTTL time.Duration

	memory      bool
	memoryFacts int
	memoryTTL   time.Duration
	memoryTopK  int

	topK              int
	maxHops           int
	minDocs           int
	similarityOnly    bool
	t4Disabled        bool
	normalizeDisabled bool
	routing           bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// OpenAIConfig configures OpenAI-compatible providers for both the embedder
// and the reasoning oracle. Models left empty are not configured.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	EmbeddingModel      string
	EmbeddingDimensions int

	OracleModel string
	// RatePerSec limits oracle calls; zero disables limiting.
	RatePerSec float64
}

// WithKnowledgeBase loads the snapshot at path (.parquet or JSON).
func WithKnowledgeBase(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.kbPath = path
	})
}

// WithDocuments uses an in-memory knowledge base instead of a file.
func WithDocuments(docs []Document) Option {
	return optionFunc(func(c *clientConfig) {
		c.documents = docs
	})
}

// WithVocabulary overlays the built-in vocabulary with the YAML file at path.
func WithVocabulary(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.vocabPath = path
	})
}

// WithEmbedder sets the query embedding provider.
// Its vectors must match the knowledge base dimension.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOracle sets the reasoning model used for hop planning, recovery
// and completeness checks.
func WithOracle(o Oracle) Option {
	return optionFunc(func(c *clientConfig) {
		c.oracle = o
	})
}

// WithOpenAI builds the embedder and the oracle from an OpenAI-compatible
// endpoint. Explicit WithEmbedder and WithOracle take precedence.
func WithOpenAI(cfg OpenAIConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAI = &cfg
	})
}

// WithQueryInstruction prepends an instruction to every embedded query.
func WithQueryInstruction(instruction string) Option {
	return optionFunc(func(c *clientConfig) {
		c.instruction = instruction
	})
}

// WithRedis enables conversation memory backed by a Redis or Valkey instance.
// Without it, follow-up rewriting and history are disabled.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithConversation tunes conversation memory: how many turns feed the
// follow-up rewriter and how long an idle history is kept. Defaults: 6 turns, 6h.
func WithConversation(historyTurns int, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.historyTurns = historyTurns
		c.conversationTTL = ttl
	})
}

// WithLongTermMemory keeps facts about each user (profile, preferences,
// workflow) across conversations. Requires WithRedis. Zero values keep the
// defaults: 50 facts, 30 days, 5 recalled per query.
func WithLongTermMemory(maxFacts int, ttl time.Duration, topK int) Option {
	return optionFunc(func(c *clientConfig) {
		c.memory = true
		c.memoryFacts = maxFacts
		c.memoryTTL = ttl
		c.memoryTopK = topK
	})
}

// WithRouting answers general chemical knowledge questions without
// retrieval. Result.Route reports the decision.
func WithRouting() Option {
	return optionFunc(func(c *clientConfig) {
		c.routing = true
	})
}

// WithoutQueryNormalization skips the oracle call that repairs spelling
// and diacritics before retrieval.
func WithoutQueryNormalization() Option {
	return optionFunc(func(c *clientConfig) {
		c.normalizeDisabled = true
	})
}

// WithTopK sets the per-hop retrieval depth. Default: 20.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithMaxHops bounds multi-hop retrieval. Default: 3.
func WithMaxHops(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxHops = n
	})
}

// WithMinDocs stops the hop loop once this many documents are collected.
// Default: 25.
func WithMinDocs(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.minDocs = n
	})
}

// WithSimilarityOnly enables the last retrieval fallback, which ranks
// documents by similarity alone when no tag matches.
func WithSimilarityOnly() Option {
	return optionFunc(func(c *clientConfig) {
		c.similarityOnly = true
	})
}

// WithoutSolutionCompletion disables targeted retrieval for missing slots.
func WithoutSolutionCompletion() Option {
	return optionFunc(func(c *clientConfig) {
		c.t4Disabled = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
