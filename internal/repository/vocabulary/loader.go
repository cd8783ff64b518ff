package vocabulary

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	domvocab "github.com/kailas-cloud/agrirag/internal/domain/vocabulary"
)

//go:embed default.yaml
var defaultYAML []byte

// maxFileSize bounds override files read from disk.
const maxFileSize = 8 << 20

var (
	defaultOnce sync.Once
	defaultVoc  *domvocab.Vocabulary
	defaultErr  error
)

// Default returns the embedded vocabulary, parsed once per process.
func Default() (*domvocab.Vocabulary, error) {
	defaultOnce.Do(func() {
		defaultVoc, defaultErr = Parse(defaultYAML)
	})
	return defaultVoc, defaultErr
}

// Parse decodes and validates vocabulary YAML.
func Parse(data []byte) (*domvocab.Vocabulary, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("vocabulary: empty YAML")
	}
	var v domvocab.Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vocabulary: parse: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	return &v, nil
}

// Load returns the embedded default, overlaid with the file at path when set.
// Sections present in the override replace the default ones; alias tables
// and slot entries are replaced per key.
func Load(path string) (*domvocab.Vocabulary, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: stat %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("vocabulary: %s exceeds %d bytes", path, maxFileSize)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("vocabulary: read %s: %w", path, err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return overlay(base, override), nil
}

func overlay(base, over *domvocab.Vocabulary) *domvocab.Vocabulary {
	out := &domvocab.Vocabulary{
		Aliases:           maps.Clone(base.Aliases),
		Chemicals:         base.Chemicals,
		ListingKeywords:   base.ListingKeywords,
		ReferencePatterns: base.ReferencePatterns,
		FormulaTriggers:   base.FormulaTriggers,
		SlotCoverage:      maps.Clone(base.SlotCoverage),
		SlotQueries:       maps.Clone(base.SlotQueries),
		Routing:           base.Routing,
		Policy:            base.Policy,
	}
	if out.Aliases == nil {
		out.Aliases = make(map[string]map[string][]string)
	}
	maps.Copy(out.Aliases, over.Aliases)
	if len(over.Chemicals) > 0 {
		out.Chemicals = over.Chemicals
	}
	if len(over.ListingKeywords) > 0 {
		out.ListingKeywords = over.ListingKeywords
	}
	if len(over.ReferencePatterns) > 0 {
		out.ReferencePatterns = over.ReferencePatterns
	}
	if len(over.FormulaTriggers) > 0 {
		out.FormulaTriggers = over.FormulaTriggers
	}
	if !over.Routing.IsZero() {
		out.Routing = over.Routing
	}
	if !over.Policy.IsZero() {
		out.Policy = over.Policy
	}
	if over.SlotCoverage != nil {
		if out.SlotCoverage == nil {
			out.SlotCoverage = over.SlotCoverage
		} else {
			maps.Copy(out.SlotCoverage, over.SlotCoverage)
		}
	}
	if over.SlotQueries != nil {
		if out.SlotQueries == nil {
			out.SlotQueries = over.SlotQueries
		} else {
			maps.Copy(out.SlotQueries, over.SlotQueries)
		}
	}
	return out
}
