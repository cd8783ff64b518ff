package knowledge

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
)

// Row is one document of a Parquet snapshot.
type Row struct {
	ID          string    `parquet:"id"`
	Question    string    `parquet:"question,optional"`
	AltQuestion string    `parquet:"alt_question,optional"`
	Answer      string    `parquet:"answer,optional"`
	Category    string    `parquet:"category,optional"`
	Tags        string    `parquet:"tags,optional"`
	TagsV2      string    `parquet:"tags_v2,optional"`
	EntityType  string    `parquet:"entity_type,optional"`
	Embedding   []float32 `parquet:"embedding,list"`
}

func (r Row) fields() knowledge.Fields {
	return knowledge.Fields{
		ID:          r.ID,
		Question:    r.Question,
		AltQuestion: r.AltQuestion,
		Answer:      r.Answer,
		Category:    r.Category,
		Tags:        r.Tags,
		TagsV2:      r.TagsV2,
		EntityType:  r.EntityType,
		Embedding:   r.Embedding,
	}
}

func readParquetFile(path string) ([]knowledge.Fields, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return toFields(rows), nil
}

// ReadParquet decodes a Parquet snapshot from r.
func ReadParquet(r io.ReaderAt, size int64) ([]knowledge.Fields, error) {
	rows, err := parquet.Read[Row](r, size)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return toFields(rows), nil
}

// WriteParquet encodes documents as a Parquet snapshot.
func WriteParquet(w io.Writer, rows []Row) error {
	if err := parquet.Write(w, rows); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

func toFields(rows []Row) []knowledge.Fields {
	out := make([]knowledge.Fields, len(rows))
	for i, r := range rows {
		out[i] = r.fields()
	}
	return out
}
