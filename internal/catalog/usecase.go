package catalog

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (*model.Item, error)
	SearchItems(ctx context.Context, query string) ([]model.Item, error)
	ListItems(ctx context.Context) ([]model.Item, error)
	UpdateItem(ctx context.Context, input *dto.UpdateItemInput) (*model.Item, error)
	DeleteItem(ctx context.Context, id string) error
	BulkDeleteItems(ctx context.Context, ids []string) (*dto.BulkDeleteResult, error)
	ImportItems(ctx context.Context, rows []dto.ImportRow) (*dto.ImportResult, error)
}
