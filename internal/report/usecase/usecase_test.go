package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/report"
)

type staticSource []model.Item

func (s staticSource) Items() []model.Item { return s }

var utc3 = time.FixedZone("UTC+3", 3*60*60)

func newTestUseCase(t *testing.T) *reportUseCase {
	t.Helper()
	item := &model.Item{
		BaseModel: model.BaseModel{ID: "mug"},
		Name:      "Mug",
		BuyPrice:  decimal.NewFromInt(4),
		SellPrice: decimal.NewFromInt(10),
	}
	moves := []model.Transaction{
		{ID: "open", Type: model.TransactionIn, Quantity: 20, Date: time.Date(2023, 12, 20, 10, 0, 0, 0, utc3)},
		{ID: "jan", Type: model.TransactionOut, Quantity: 2, Date: time.Date(2024, 1, 10, 10, 0, 0, 0, utc3), Channel: model.ChannelRetail},
		{ID: "late", Type: model.TransactionOut, Quantity: 3, Date: time.Date(2024, 5, 31, 23, 30, 0, 0, utc3), Channel: model.ChannelRetail},
	}
	for _, tx := range moves {
		if err := ledger.Post(item, tx, tx.Date); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	uc := NewReportUseCase(staticSource{*item}, Config{Location: utc3}).(*reportUseCase)
	uc.now = func() time.Time { return time.Date(2024, 5, 31, 21, 0, 0, 0, time.UTC) }
	return uc
}

func TestSalesDefaultsToYearToDate(t *testing.T) {
	uc := newTestUseCase(t)

	got, err := uc.Sales(context.Background(), report.RangeInput{})
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	// now is 2024-06-01 00:00 in UTC+3, so the window covers January 1st to June 1st.
	if got.Quantity != 5 || got.TransactionCount != 2 {
		t.Errorf("got quantity %d count %d, want 5 and 2", got.Quantity, got.TransactionCount)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, utc3); !got.Period.Start.Equal(want) {
		t.Errorf("start = %v, want %v", got.Period.Start, want)
	}
}

func TestSalesExplicitRange(t *testing.T) {
	uc := newTestUseCase(t)

	got, err := uc.Sales(context.Background(), report.RangeInput{Start: "2024-01-10", End: "2024-01-10"})
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if got.Quantity != 2 || !got.Revenue.Equal(decimal.NewFromInt(20)) {
		t.Errorf("got %+v", got)
	}
}

func TestInvalidDates(t *testing.T) {
	uc := newTestUseCase(t)

	cases := []report.RangeInput{
		{Start: "10/01/2024"},
		{End: "2024-13-01"},
		{Start: "2024-03-02", End: "2024-03-01"},
	}
	for _, in := range cases {
		_, err := uc.Turnover(context.Background(), in)
		if !errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeInvalidDate}) {
			t.Errorf("%+v: err = %v, want invalid_date", in, err)
		}
	}
}

func TestValuationUsesEndOfDay(t *testing.T) {
	uc := newTestUseCase(t)

	got, err := uc.Valuation(context.Background(), "2024-05-31")
	if err != nil {
		t.Fatalf("Valuation: %v", err)
	}
	if got.TotalQuantity != 15 {
		t.Errorf("quantity at end of May 31 = %d, want 15", got.TotalQuantity)
	}

	got, err = uc.Valuation(context.Background(), "2024-01-09")
	if err != nil {
		t.Fatalf("Valuation: %v", err)
	}
	if got.TotalQuantity != 20 || !got.TotalValue.Equal(decimal.NewFromInt(80)) {
		t.Errorf("got quantity %d value %s, want 20 and 80", got.TotalQuantity, got.TotalValue)
	}
}

func TestStockHealthDefaultThreshold(t *testing.T) {
	uc := newTestUseCase(t)

	got := uc.StockHealth(context.Background(), 0)
	if got.Threshold != report.DefaultCriticalStock {
		t.Errorf("threshold = %d, want %d", got.Threshold, report.DefaultCriticalStock)
	}
	if got.InStock != 1 || got.Critical != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestRecentSalesOnly(t *testing.T) {
	uc := newTestUseCase(t)

	got := uc.Recent(context.Background(), 0, true)
	if len(got) != 2 || got[0].ID != "late" {
		t.Fatalf("got %+v, want late then jan", got)
	}
}
