package vector

import (
	"context"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding memory objects.
const ClassName = "OpenMemMemory"

// ensureClass creates the memory class when it does not exist yet.
func ensureClass(ctx context.Context, cl *weaviate.Client) error {
	exists, err := cl.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class: ClassName,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "ownerId", DataType: []string{"text"}},
			{Name: "metadataJson", DataType: []string{"text"}},
		},
	}
	return cl.Schema().ClassCreator().WithClass(class).Do(ctx)
}
