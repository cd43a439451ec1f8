// Package vector abstracts the semantic store. The vector store is the system
// of record for memory identity: Add returns server-assigned ids, and the
// relational store is reconciled from those results.
package vector

import (
	"context"

	"github.com/openmem/openmem-server/internal/model"
)

// Index is the write/search surface of the vector store.
type Index interface {
	// Add inserts content for the owner and returns a sync result whose
	// events carry the ids the vector store assigned.
	Add(ctx context.Context, content, ownerID string, metadata map[string]interface{}) (*model.SyncResult, error)

	// Update replaces the content stored under an existing id.
	Update(ctx context.Context, id, content string, metadata map[string]interface{}) (*model.SyncResult, error)

	// Search runs a hybrid (keyword + vector) query scoped to the owner.
	Search(ctx context.Context, query, ownerID string, limit int) ([]model.VectorHit, error)

	// Delete removes the object; deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// HealthPing reports vector store reachability.
	HealthPing(ctx context.Context) error
}
