package report

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Source supplies item snapshots. *catalog.Store satisfies it.
type Source interface {
	Items() []model.Item
}

// RangeInput carries calendar dates as YYYY-MM-DD. Empty values default to
// January 1st of the current year and today.
type RangeInput struct {
	Start string
	End   string
	Limit int
}

type UseCase interface {
	Overview(ctx context.Context) OverviewSummary
	Sales(ctx context.Context, in RangeInput) (SalesSummary, error)
	Purchases(ctx context.Context, in RangeInput) (PurchaseSummary, error)
	Valuation(ctx context.Context, date string) (Valuation, error)
	Turnover(ctx context.Context, in RangeInput) ([]TurnoverEntry, error)
	TopProducts(ctx context.Context, in RangeInput) ([]ProductSales, error)
	Brands(ctx context.Context) []BrandBucket
	Channels(ctx context.Context, in RangeInput) ([]ChannelTotals, error)
	StockHealth(ctx context.Context, threshold int) StockHealthSummary
	NoSales(ctx context.Context, in RangeInput) ([]ItemRef, error)
	Recent(ctx context.Context, limit int, onlyOut bool) []dto.Movement
}
