package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/report"
)

const dateLayout = "2006-01-02"

type Config struct {
	Location         *time.Location
	Weights          report.Weights
	TurnoverLimit    int
	TopProductsLimit int
	NoSalesLimit     int
	RecentLimit      int
	CriticalStock    int
}

func (c *Config) withDefaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Weights == (report.Weights{}) {
		c.Weights = report.DefaultWeights
	}
	if c.TurnoverLimit <= 0 {
		c.TurnoverLimit = report.DefaultTurnoverLimit
	}
	if c.TopProductsLimit <= 0 {
		c.TopProductsLimit = report.DefaultTopProductsLimit
	}
	if c.NoSalesLimit <= 0 {
		c.NoSalesLimit = report.DefaultNoSalesLimit
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = report.DefaultRecentLimit
	}
	if c.CriticalStock <= 0 {
		c.CriticalStock = report.DefaultCriticalStock
	}
}

type reportUseCase struct {
	source report.Source
	cfg    Config
	now    func() time.Time
}

func NewReportUseCase(source report.Source, cfg Config) report.UseCase {
	cfg.withDefaults()
	return &reportUseCase{source: source, cfg: cfg, now: time.Now}
}

func (uc *reportUseCase) parseDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, uc.cfg.Location)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.CodeInvalidDate, map[string]interface{}{"Value": value})
	}
	return t, nil
}

// period resolves a RangeInput, defaulting to the current year to date.
func (uc *reportUseCase) period(in report.RangeInput) (report.Period, error) {
	today := uc.now().In(uc.cfg.Location)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, uc.cfg.Location)

	start, err := uc.parseDate(in.Start, yearStart)
	if err != nil {
		return report.Period{}, err
	}
	end, err := uc.parseDate(in.End, today)
	if err != nil {
		return report.Period{}, err
	}
	if end.Before(start) {
		return report.Period{}, apperr.Validation(apperr.CodeInvalidDate, map[string]interface{}{"Value": in.End})
	}
	return report.NewPeriod(start, end, uc.cfg.Location), nil
}

func limitOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

func (uc *reportUseCase) Overview(ctx context.Context) report.OverviewSummary {
	return report.Overview(uc.source.Items())
}

func (uc *reportUseCase) Sales(ctx context.Context, in report.RangeInput) (report.SalesSummary, error) {
	p, err := uc.period(in)
	if err != nil {
		return report.SalesSummary{}, err
	}
	return report.PeriodSales(uc.source.Items(), p), nil
}

func (uc *reportUseCase) Purchases(ctx context.Context, in report.RangeInput) (report.PurchaseSummary, error) {
	p, err := uc.period(in)
	if err != nil {
		return report.PurchaseSummary{}, err
	}
	return report.PeriodPurchases(uc.source.Items(), p), nil
}

// Valuation reconstructs stock at the end of the given calendar day.
func (uc *reportUseCase) Valuation(ctx context.Context, date string) (report.Valuation, error) {
	day, err := uc.parseDate(date, uc.now())
	if err != nil {
		return report.Valuation{}, err
	}
	return report.InventoryAsOf(uc.source.Items(), report.EndOfDay(day, uc.cfg.Location)), nil
}

func (uc *reportUseCase) Turnover(ctx context.Context, in report.RangeInput) ([]report.TurnoverEntry, error) {
	p, err := uc.period(in)
	if err != nil {
		return nil, err
	}
	return report.Turnover(uc.source.Items(), p, uc.cfg.Weights, limitOr(in.Limit, uc.cfg.TurnoverLimit)), nil
}

func (uc *reportUseCase) TopProducts(ctx context.Context, in report.RangeInput) ([]report.ProductSales, error) {
	p, err := uc.period(in)
	if err != nil {
		return nil, err
	}
	return report.TopProducts(uc.source.Items(), p, limitOr(in.Limit, uc.cfg.TopProductsLimit)), nil
}

func (uc *reportUseCase) Brands(ctx context.Context) []report.BrandBucket {
	return report.BrandSummary(uc.source.Items())
}

func (uc *reportUseCase) Channels(ctx context.Context, in report.RangeInput) ([]report.ChannelTotals, error) {
	p, err := uc.period(in)
	if err != nil {
		return nil, err
	}
	return report.ChannelSummary(uc.source.Items(), p), nil
}

func (uc *reportUseCase) StockHealth(ctx context.Context, threshold int) report.StockHealthSummary {
	return report.StockHealth(uc.source.Items(), limitOr(threshold, uc.cfg.CriticalStock))
}

func (uc *reportUseCase) NoSales(ctx context.Context, in report.RangeInput) ([]report.ItemRef, error) {
	p, err := uc.period(in)
	if err != nil {
		return nil, err
	}
	return report.NoSales(uc.source.Items(), p, limitOr(in.Limit, uc.cfg.NoSalesLimit)), nil
}

func (uc *reportUseCase) Recent(ctx context.Context, limit int, onlyOut bool) []dto.Movement {
	def := uc.cfg.RecentLimit
	if onlyOut {
		def = report.DefaultRecentSalesLimit
	}
	return report.RecentTransactions(uc.source.Items(), limitOr(limit, def), onlyOut)
}
