// Package knowledge loads the read-only knowledge base snapshot.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/logger"
)

// Load reads a snapshot by file extension: .parquet or JSON parallel arrays.
func Load(ctx context.Context, path string) (*knowledge.Base, error) {
	start := time.Now()

	var (
		rows []knowledge.Fields
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		rows, err = readParquetFile(path)
	default:
		var data []byte
		data, err = os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read knowledge base %s: %w", path, err)
		}
		rows, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load knowledge base %s: %w", path, err)
	}

	base, err := build(rows)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base %s: %w", path, err)
	}

	logger.FromContext(ctx).Info("knowledge base loaded",
		zap.String("path", path),
		zap.Int("documents", base.Len()),
		zap.Int("dimension", base.Dimension()),
		zap.Duration("duration", time.Since(start)),
	)
	return base, nil
}

func build(rows []knowledge.Fields) (*knowledge.Base, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no documents: %w", domain.ErrKnowledgeBaseInvalid)
	}
	docs := make([]knowledge.Document, 0, len(rows))
	for i, r := range rows {
		d, err := knowledge.New(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: %w", i, domain.ErrKnowledgeBaseInvalid, err)
		}
		docs = append(docs, d)
	}
	base, err := knowledge.NewBase(docs)
	if err != nil {
		return nil, fmt.Errorf("build base: %w", err)
	}
	return base, nil
}
