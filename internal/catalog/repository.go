package catalog

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// ErrNotInReplica is returned by Store.Mutate for an unknown id.
var ErrNotInReplica = errors.New("item not in replica")

type Repository interface {
	// FindAll returns every item with its transactions, newest first.
	FindAll(ctx context.Context) ([]model.Item, error)
	FindByID(ctx context.Context, id string) (*model.Item, error)
	IsBarcodeUnique(ctx context.Context, barcode, excludeID string) (bool, error)

	// Create inserts the item and its transactions atomically.
	Create(ctx context.Context, item *model.Item) error
	Update(ctx context.Context, item *model.Item) error
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) (int64, error)

	// BulkUpsert upserts by barcode and inserts the given transactions,
	// skipping ids that already exist. Each element's ID and CreatedAt are
	// overwritten with the stored row's.
	BulkUpsert(ctx context.Context, items []model.Item) error
}
