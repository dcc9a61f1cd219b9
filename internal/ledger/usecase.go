package ledger

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	PostTransaction(ctx context.Context, input *dto.PostTransactionInput) (*model.Item, error)
	ReceiveByBarcode(ctx context.Context, input *dto.ReceiveInput) (*model.Item, error)
	CompleteSale(ctx context.Context, input *dto.SaleInput) (*dto.SaleResult, error)
	RemoveTransactions(ctx context.Context, ids []string) (*dto.RemovalResult, error)
	ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]dto.Movement, int, error)
}
