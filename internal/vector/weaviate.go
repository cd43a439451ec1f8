package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/openmem/openmem-server/internal/model"
)

// weavIndex is the Weaviate-backed Index.
type weavIndex struct {
	client *weaviate.Client
	alpha  float32
}

// NewWeaviateIndex connects to Weaviate at baseURL (host:port, no scheme) and
// ensures the memory class exists. alpha weights hybrid search between
// keyword (0) and vector (1) scoring.
func NewWeaviateIndex(ctx context.Context, baseURL string, alpha float64) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureClass(ctx, cl); err != nil {
		return nil, err
	}
	return &weavIndex{client: cl, alpha: float32(alpha)}, nil
}

func metadataJSON(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

func (w *weavIndex) Add(ctx context.Context, content, ownerID string, metadata map[string]interface{}) (*model.SyncResult, error) {
	props := map[string]interface{}{
		"content":      content,
		"ownerId":      ownerID,
		"metadataJson": metadataJSON(metadata),
	}
	// No WithID: the id comes back server-assigned and becomes the canonical
	// memory identifier downstream.
	wrapper, err := w.client.Data().Creator().
		WithClassName(ClassName).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return nil, model.Transient(err)
	}
	id := wrapper.Object.ID.String()
	log.Debug().Str("id", id).Str("ownerId", ownerID).Msg("vector object created")
	return &model.SyncResult{Results: []model.SyncEvent{{
		ID:       id,
		Memory:   content,
		Event:    model.SyncEventAdd,
		Metadata: metadata,
	}}}, nil
}

func (w *weavIndex) Update(ctx context.Context, id, content string, metadata map[string]interface{}) (*model.SyncResult, error) {
	props := map[string]interface{}{
		"content":      content,
		"metadataJson": metadataJSON(metadata),
	}
	err := w.client.Data().Updater().
		WithMerge().
		WithClassName(ClassName).
		WithID(id).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return nil, model.Transient(err)
	}
	return &model.SyncResult{Results: []model.SyncEvent{{
		ID:       id,
		Memory:   content,
		Event:    model.SyncEventUpdate,
		Metadata: metadata,
	}}}, nil
}

func (w *weavIndex) Search(ctx context.Context, query, ownerID string, limit int) ([]model.VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithAlpha(w.alpha).
		WithProperties([]string{"content"})

	where := filters.Where().WithPath([]string{"ownerId"}).WithOperator(filters.Equal).WithValueText(ownerID)

	resp, err := w.client.GraphQL().Get().
		WithClassName(ClassName).
		WithWhere(where).
		WithHybrid(hy).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: "content"},
			gql.Field{Name: "metadataJson"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}, {Name: "score"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, model.Transient(err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := getData[ClassName].([]interface{})
	if !ok {
		return []model.VectorHit{}, nil
	}

	out := make([]model.VectorHit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var hit model.VectorHit
		hit.Memory, _ = m["content"].(string)
		if mj, _ := m["metadataJson"].(string); mj != "" {
			_ = json.Unmarshal([]byte(mj), &hit.Metadata)
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = add["id"].(string)
			switch v := add["score"].(type) {
			case float64:
				hit.Score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					hit.Score = f
				}
			}
		}
		if hit.ID == "" {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}

func (w *weavIndex) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	// Missing objects are fine: delete is part of replayable cleanup paths.
	_ = w.client.Data().Deleter().WithClassName(ClassName).WithID(id).Do(ctx)
	return nil
}

func (w *weavIndex) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}

func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
