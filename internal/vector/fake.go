package vector

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openmem/openmem-server/internal/model"
)

// Fake is an in-memory Index for tests. Ids are assigned the same way the
// real store assigns them (server-side, opaque to callers), and search is a
// case-insensitive token match so tests stay deterministic.
type Fake struct {
	mu      sync.Mutex
	objects map[string]fakeObject

	// AddErr / UpdateErr, when set, are returned by the corresponding call.
	AddErr    error
	UpdateErr error
}

type fakeObject struct {
	content  string
	ownerID  string
	metadata map[string]interface{}
}

func NewFake() *Fake {
	return &Fake{objects: make(map[string]fakeObject)}
}

func (f *Fake) Add(ctx context.Context, content, ownerID string, metadata map[string]interface{}) (*model.SyncResult, error) {
	if f.AddErr != nil {
		return nil, f.AddErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New().String()
	f.objects[id] = fakeObject{content: content, ownerID: ownerID, metadata: metadata}
	return &model.SyncResult{Results: []model.SyncEvent{{
		ID: id, Memory: content, Event: model.SyncEventAdd, Metadata: metadata,
	}}}, nil
}

func (f *Fake) Update(ctx context.Context, id, content string, metadata map[string]interface{}) (*model.SyncResult, error) {
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	obj.content = content
	if metadata != nil {
		obj.metadata = metadata
	}
	f.objects[id] = obj
	return &model.SyncResult{Results: []model.SyncEvent{{
		ID: id, Memory: content, Event: model.SyncEventUpdate, Metadata: metadata,
	}}}, nil
}

func (f *Fake) Search(ctx context.Context, query, ownerID string, limit int) ([]model.VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	var hits []model.VectorHit
	for id, obj := range f.objects {
		if obj.ownerID != ownerID {
			continue
		}
		content := strings.ToLower(obj.content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, model.VectorHit{
			ID:       id,
			Memory:   obj.content,
			Score:    float64(matched) / float64(len(terms)),
			Metadata: obj.metadata,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *Fake) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, id)
	return nil
}

func (f *Fake) HealthPing(ctx context.Context) error { return nil }

// Len reports the number of stored objects.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// Content returns the stored content for id, for assertions.
func (f *Fake) Content(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[id]
	return obj.content, ok
}
