// Package rag narrows the widget catalog for a turn. A Retriever maps
// the user's message to the descriptor documents worth showing the
// model; when none is configured the orchestrator falls back to the
// full catalog.
package rag

import "context"

// Retriever selects widget descriptor documents relevant to a query.
type Retriever interface {
	// Search returns up to topK descriptor documents ranked by
	// relevance to the query.
	Search(ctx context.Context, query string, topK int) ([]string, error)
}
