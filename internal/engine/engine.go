package engine

import (
	"context"

	"github.com/utafrali/shopindex/internal/domain"
)

// IndexStore defines the index operations the synchronizer, the reindexer and
// the search service depend on. Writes carry the document version; a write
// older than the stored version is a successful no-op.
//
// Write failures worth retrying wrap domain.ErrTransientIndexWrite. Reads from
// an unreachable store wrap domain.ErrIndexUnavailable.
type IndexStore interface {
	// Index adds or replaces a single document.
	Index(ctx context.Context, doc domain.Document) error

	// BulkIndex adds or replaces many documents of possibly different types.
	BulkIndex(ctx context.Context, docs []domain.Document) error

	// Delete removes a document. A missing document is not an error.
	Delete(ctx context.Context, ref domain.EntityRef, version int64) error

	// Search executes a query against the index of q.Type.
	Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error)

	// Ping checks whether the store is reachable.
	Ping(ctx context.Context) error
}

// IndexNames maps entity types to physical index names.
type IndexNames map[domain.EntityType]string

// DefaultIndexNames names each index after its entity type, with an optional prefix.
func DefaultIndexNames(prefix string) IndexNames {
	names := make(IndexNames, len(domain.AllTypes))
	for _, t := range domain.AllTypes {
		names[t] = prefix + string(t)
	}
	return names
}

// For returns the index name of t.
func (n IndexNames) For(t domain.EntityType) string {
	if name, ok := n[t]; ok && name != "" {
		return name
	}
	return string(t)
}
