package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the agrirag API configuration.
type Config struct {
	HTTP         HTTPConfig                `yaml:"http"`
	Database     DatabaseConfig            `yaml:"database"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Embedding    EmbeddingConfig           `yaml:"embedding"`
	Oracle       OracleConfig              `yaml:"oracle"`
	Knowledge    KnowledgeConfig           `yaml:"knowledge"`
	Retrieval    RetrievalConfig           `yaml:"retrieval"`
	Scoring      ScoringConfig             `yaml:"scoring"`
	Recovery     RecoveryConfig            `yaml:"recovery"`
	Completeness CompletenessConfig        `yaml:"completeness"`
	Context      ContextConfig             `yaml:"context"`
	Conversation ConversationConfig        `yaml:"conversation"`
	Query        QueryConfig               `yaml:"query"`
	Memory       MemoryConfig              `yaml:"memory"`
	Auth         AuthConfig                `yaml:"auth"`
	Storage      StorageConfig             `yaml:"storage"`
	Logging      LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxQueryChars   int `yaml:"max_query_chars"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis (default); any RESP server works
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`       // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"`     // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // dashboard only
	Action               string  `yaml:"action"`                  // "reject" | "warn" (default)
}

// ProviderConfig holds credentials for an OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Provider         string       `yaml:"provider"`
	Model            string       `yaml:"model"`
	Dimensions       int          `yaml:"dimensions"`
	QueryInstruction string       `yaml:"query_instruction"`
	CacheTTLHours    int          `yaml:"cache_ttl_hours"`
	Budget           BudgetConfig `yaml:"budget"`
}

// OracleConfig holds reasoning model settings.
type OracleConfig struct {
	Provider    string       `yaml:"provider"`
	Model       string       `yaml:"model"`
	Temperature float32      `yaml:"temperature"`
	MaxTokens   int          `yaml:"max_tokens"`
	TimeoutSec  int          `yaml:"timeout_sec"`
	RatePerSec  float64      `yaml:"rate_per_sec"` // 0 = unlimited
	Burst       int          `yaml:"burst"`
	Budget      BudgetConfig `yaml:"budget"`
}

// KnowledgeConfig points at the knowledge base snapshot and vocabulary.
type KnowledgeConfig struct {
	Path           string `yaml:"path"`            // .json or .parquet
	VocabularyPath string `yaml:"vocabulary_path"` // empty = embedded default
}

// RetrievalConfig holds candidate retrieval and multi-hop settings.
type RetrievalConfig struct {
	TopK             int  `yaml:"top_k"`
	MaxHops          int  `yaml:"max_hops"`
	MinDocsForAnswer int  `yaml:"min_docs_for_answer"`
	SimilarityOnly   bool `yaml:"similarity_only_fallback"`
	IntentHint       bool `yaml:"intent_hint"`
}

// ScoringConfig holds fused score weights.
type ScoringConfig struct {
	TagWeight    float64 `yaml:"tag_weight"`
	EmbedWeight  float64 `yaml:"embed_weight"`
	MaxTagScore  float64 `yaml:"max_tag_score"`
	GapThreshold float64 `yaml:"gap_threshold"`
	MinGapBonus  float64 `yaml:"min_gap_bonus"`
}

// RecoveryConfig holds no-hit recovery settings.
type RecoveryConfig struct {
	QueriesPerFamily int `yaml:"queries_per_family"`
	PerFamilyMin     int `yaml:"per_family_min"`
	MaxDocs          int `yaml:"max_docs"`
	TopK             int `yaml:"top_k"`
	Parallelism      int `yaml:"parallelism"`
}

// CompletenessConfig holds L3/T4/T5 settings.
type CompletenessConfig struct {
	T4Disabled      bool     `yaml:"t4_disabled"`
	T4TopK          int      `yaml:"t4_top_k"`
	T4MaxIntents    int      `yaml:"t4_max_intents"`
	T5ExcerptChars  int      `yaml:"t5_excerpt_chars"`
	FallbackSlots   []string `yaml:"fallback_slots"` // empty = all slots
	DraftMaxHits    int      `yaml:"draft_max_hits"`
	DraftSnippetLen int      `yaml:"draft_snippet_chars"`
}

// ContextConfig holds document budget settings.
type ContextConfig struct {
	MaxStrict    int `yaml:"max_ctx_strict"`
	MaxSoft      int `yaml:"max_ctx_soft"`
	MaxListing   int `yaml:"max_ctx_listing"`
	MaxReasoning int `yaml:"max_ctx_reasoning"`
}

// ConversationConfig holds short-term conversation memory settings.
type ConversationConfig struct {
	MaxTurns     int `yaml:"max_turns"`
	TTLHours     int `yaml:"ttl_hours"`
	HistoryTurns int `yaml:"history_turns"`
}

// QueryConfig holds query preprocessing settings.
type QueryConfig struct {
	NormalizeDisabled bool `yaml:"normalize_disabled"`
	// RoutingEnabled answers definition-style questions from general
	// knowledge instead of the knowledge base.
	RoutingEnabled bool `yaml:"routing_enabled"`
}

// MemoryConfig holds long-lived user fact settings.
type MemoryConfig struct {
	Enabled  bool `yaml:"enabled"`
	TopK     int  `yaml:"top_k"`
	MaxFacts int  `yaml:"max_facts"`
	TTLDays  int  `yaml:"ttl_days"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML configuration.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo,cyclop // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxQueryChars <= 0 {
		c.HTTP.MaxQueryChars = 2000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "agrirag:"
	}

	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}
	if c.Oracle.TimeoutSec <= 0 {
		c.Oracle.TimeoutSec = 30
	}
	if c.Oracle.MaxTokens <= 0 {
		c.Oracle.MaxTokens = 600
	}
	if c.Oracle.Burst <= 0 {
		c.Oracle.Burst = 4
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 20
	}
	if c.Retrieval.MaxHops <= 0 {
		c.Retrieval.MaxHops = 3
	}
	if c.Retrieval.MinDocsForAnswer <= 0 {
		c.Retrieval.MinDocsForAnswer = 25
	}

	if c.Scoring.TagWeight <= 0 && c.Scoring.EmbedWeight <= 0 {
		c.Scoring.TagWeight = 0.65
		c.Scoring.EmbedWeight = 0.35
	}
	if c.Scoring.MaxTagScore <= 0 {
		c.Scoring.MaxTagScore = 5
	}
	if c.Scoring.GapThreshold <= 0 {
		c.Scoring.GapThreshold = 0.15
	}
	if c.Scoring.MinGapBonus <= 0 {
		c.Scoring.MinGapBonus = 0.05
	}

	if c.Recovery.QueriesPerFamily <= 0 {
		c.Recovery.QueriesPerFamily = 3
	}
	if c.Recovery.PerFamilyMin <= 0 {
		c.Recovery.PerFamilyMin = 3
	}
	if c.Recovery.MaxDocs <= 0 {
		c.Recovery.MaxDocs = 32
	}
	if c.Recovery.TopK <= 0 {
		c.Recovery.TopK = 12
	}
	if c.Recovery.Parallelism <= 0 {
		c.Recovery.Parallelism = 4
	}

	if c.Completeness.T4TopK <= 0 {
		c.Completeness.T4TopK = 12
	}
	if c.Completeness.T4MaxIntents <= 0 {
		c.Completeness.T4MaxIntents = 3
	}
	if c.Completeness.T5ExcerptChars <= 0 {
		c.Completeness.T5ExcerptChars = 3000
	}
	if c.Completeness.DraftMaxHits <= 0 {
		c.Completeness.DraftMaxHits = 8
	}
	if c.Completeness.DraftSnippetLen <= 0 {
		c.Completeness.DraftSnippetLen = 400
	}

	if c.Context.MaxStrict <= 0 {
		c.Context.MaxStrict = 40
	}
	if c.Context.MaxSoft <= 0 {
		c.Context.MaxSoft = 32
	}
	if c.Context.MaxListing <= 0 {
		c.Context.MaxListing = 30
	}
	if c.Context.MaxReasoning <= 0 {
		c.Context.MaxReasoning = 24
	}

	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 8
	}
	if c.Conversation.TTLHours <= 0 {
		c.Conversation.TTLHours = 6
	}
	if c.Conversation.HistoryTurns <= 0 {
		c.Conversation.HistoryTurns = 6
	}

	if c.Memory.TopK <= 0 {
		c.Memory.TopK = 5
	}
	if c.Memory.MaxFacts <= 0 {
		c.Memory.MaxFacts = 50
	}
	if c.Memory.TTLDays <= 0 {
		c.Memory.TTLDays = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Knowledge.Path == "" {
		return fmt.Errorf("knowledge.path is required")
	}
	if err := validateBudgetAction("embedding", c.Embedding.Budget.Action); err != nil {
		return err
	}
	if err := validateBudgetAction("oracle", c.Oracle.Budget.Action); err != nil {
		return err
	}
	for _, ref := range []struct{ section, name string }{
		{"embedding", c.Embedding.Provider},
		{"oracle", c.Oracle.Provider},
	} {
		if ref.name == "" {
			continue
		}
		if _, ok := c.Providers[ref.name]; !ok {
			return fmt.Errorf("%s.provider %q is not declared in providers", ref.section, ref.name)
		}
	}
	if c.Scoring.TagWeight < 0 || c.Scoring.EmbedWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	return nil
}

func validateBudgetAction(section, action string) error {
	switch action {
	case "", "warn", "reject":
		return nil
	default:
		return fmt.Errorf("%s.budget.action must be \"warn\" or \"reject\", got %q", section, action)
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
