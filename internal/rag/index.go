package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type indexedDoc struct {
	text   string
	vector []float64
}

// Index is an in-memory vector index over widget descriptor documents.
// Build it once at startup from the catalog; Search embeds the query
// and ranks documents by cosine similarity.
type Index struct {
	embedder Embedder

	mu   sync.RWMutex
	docs []indexedDoc
}

// NewIndex creates an empty index backed by the given embedder.
func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

// Add embeds and indexes the given documents.
func (idx *Index) Add(ctx context.Context, docs ...string) error {
	for _, doc := range docs {
		vec, err := idx.embedder.Embed(ctx, doc)
		if err != nil {
			return fmt.Errorf("embed document: %w", err)
		}
		idx.mu.Lock()
		idx.docs = append(idx.docs, indexedDoc{text: doc, vector: vec})
		idx.mu.Unlock()
	}
	return nil
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search implements Retriever: embed the query, rank every document by
// cosine similarity, return the topK texts.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx.mu.RLock()
	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, 0, len(idx.docs))
	for _, doc := range idx.docs {
		ranked = append(ranked, scored{doc.text, CosineSimilarity(queryVec, doc.vector)})
	}
	idx.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]string, topK)
	for i := 0; i < topK; i++ {
		out[i] = ranked[i].text
	}
	return out, nil
}
