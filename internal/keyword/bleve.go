// Package keyword provides Bleve-backed attribute search over item display
// metadata, so a corpus item can be found by its tags ("navy", "wool coat")
// without going through vector search.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/miru/internal/models"
)

// MetadataIndex indexes item metadata for keyword lookup.
type MetadataIndex struct {
	index bleve.Index
}

// metadataDoc is what gets indexed per item: the id plus all metadata values
// flattened into one searchable text field.
type metadataDoc struct {
	ID    string `json:"id"`
	Attrs string `json:"attrs"`
}

// NewMetadataIndex creates or opens a Bleve index at path. An existing index
// is reused; re-indexing an id overwrites its entry.
func NewMetadataIndex(path string) (*MetadataIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	attrsMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): metadata values
	// are short tags, stemming only hurts exact attribute matching.
	attrsMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("attrs", attrsMapping)
	idMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", idMapping)
	im.AddDocumentMapping("item", docMapping)
	im.DefaultType = "item"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open metadata index: %w", openErr)
		}
		return &MetadataIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata index: %w", err)
	}
	return &MetadataIndex{index: index}, nil
}

// Index indexes one item's metadata under its id.
func (m *MetadataIndex) Index(ctx context.Context, id string, metadata map[string]interface{}) error {
	return m.index.Index(id, metadataDoc{ID: id, Attrs: flattenMetadata(metadata)})
}

// IndexBatch indexes many items in one Bleve batch.
func (m *MetadataIndex) IndexBatch(ctx context.Context, items []*models.IndexedItem) error {
	batch := m.index.NewBatch()
	for _, item := range items {
		if err := batch.Index(item.ID, metadataDoc{ID: item.ID, Attrs: flattenMetadata(item.Metadata)}); err != nil {
			return fmt.Errorf("batch index %s: %w", item.ID, err)
		}
	}
	return m.index.Batch(batch)
}

// Result is a single metadata search hit.
type Result struct {
	ID    string
	Score float64
}

// Search runs a match query over the flattened metadata and returns up to
// limit hits by descending score.
func (m *MetadataIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := m.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("metadata search: %w", err)
	}
	out := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &Result{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Count returns the number of indexed items.
func (m *MetadataIndex) Count() (uint64, error) {
	return m.index.DocCount()
}

// Close closes the underlying index.
func (m *MetadataIndex) Close() error {
	return m.index.Close()
}

// flattenMetadata renders metadata as "key value" pairs in one text blob.
// Keys are searchable too, so "color" and "navy" both match.
func flattenMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	parts := make([]string, 0, len(metadata)*2)
	for key, value := range metadata {
		parts = append(parts, key)
		switch v := value.(type) {
		case string:
			parts = append(parts, v)
		case float64:
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			parts = append(parts, strconv.FormatBool(v))
		case int:
			parts = append(parts, strconv.Itoa(v))
		case int64:
			parts = append(parts, strconv.FormatInt(v, 10))
		}
	}
	return strings.Join(parts, " ")
}
