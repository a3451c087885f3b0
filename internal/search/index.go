package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/momentsapp/moments/internal/logger"
)

// mappingVersion is bumped whenever buildIndexMapping changes; a mismatch rebuilds the index.
const mappingVersion = "1"

// PhotoIndex wraps a Bleve index of photos. All methods are safe for concurrent use.
type PhotoIndex struct {
	index bleve.Index
	path  string
	mu    sync.RWMutex
}

// Open creates or opens the index under dataPath. An index written with another mapping
// version, or one that fails to open, is recreated empty.
func Open(dataPath string) (*PhotoIndex, error) {
	log := logger.GetDefault().WithField(logger.FieldComponent, "search")

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	indexPath := filepath.Join(dataPath, "photos.bleve")
	versionPath := filepath.Join(dataPath, "photos.version")

	var index bleve.Index
	if _, err := os.Stat(indexPath); err == nil {
		version, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(version) != mappingVersion:
			log.Infof("Search index mapping changed, rebuilding (version %s)", mappingVersion)
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				log.WithError(err).Warn("Failed to open search index, recreating")
				index = nil
			}
		}
		if index == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, fmt.Errorf("remove old index: %w", err)
			}
		}
	}

	if index == nil {
		var err error
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0644); err != nil {
			log.WithError(err).Warn("Failed to write search index version")
		}
		log.Infof("Created search index at %s", indexPath)
	}

	return &PhotoIndex{index: index, path: indexPath}, nil
}

// OpenInMemory returns an index that lives only in memory.
func OpenInMemory() (*PhotoIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &PhotoIndex{index: index}, nil
}

// Close closes the index and releases resources.
func (s *PhotoIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexPhoto adds or replaces a photo document.
func (s *PhotoIndex) IndexPhoto(ctx context.Context, doc *PhotoDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.index.Index(doc.ID, doc.ToMap()); err != nil {
		return fmt.Errorf("index photo %s: %w", doc.ID, err)
	}
	return nil
}

// IndexPhotos indexes documents in batches.
func (s *PhotoIndex) IndexPhotos(ctx context.Context, docs []*PhotoDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const batchSize = 500
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		batch := s.index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DeletePhoto removes a photo document.
func (s *PhotoIndex) DeletePhoto(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// DocumentCount returns the number of indexed photos.
func (s *PhotoIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Result is a page of hits.
type Result struct {
	Hits  []Hit  `json:"hits"`
	Total uint64 `json:"total"`
}

// Search matches q against description, alt-text, tags and detected objects. Exact tag
// matches rank highest.
func (s *PhotoIndex) Search(ctx context.Context, q string, limit, offset int) (*Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return &Result{Hits: []Hit{}}, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, offset, false)

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return &Result{Hits: hits, Total: res.Total}, nil
}

func buildQuery(q string) query.Query {
	lower := strings.ToLower(q)
	var queries []query.Query

	desc := bleve.NewMatchQuery(q)
	desc.SetField("description")
	desc.SetBoost(2.0)
	queries = append(queries, desc)

	alt := bleve.NewMatchQuery(q)
	alt.SetField("alt_text")
	alt.SetBoost(1.5)
	queries = append(queries, alt)

	terms := append([]string{lower}, strings.Fields(lower)...)
	seen := map[string]bool{}
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		tag := bleve.NewTermQuery(term)
		tag.SetField("tags")
		tag.SetBoost(3.0)
		queries = append(queries, tag)

		obj := bleve.NewTermQuery(term)
		obj.SetField("objects")
		obj.SetBoost(2.0)
		queries = append(queries, obj)
	}

	if len(lower) >= 4 && !strings.Contains(lower, " ") {
		fuzzy := bleve.NewFuzzyQuery(lower)
		fuzzy.SetField("description")
		fuzzy.SetFuzziness(1)
		queries = append(queries, fuzzy)
	}

	return bleve.NewDisjunctionQuery(queries...)
}
