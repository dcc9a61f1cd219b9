package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

// mockRepo is an in-memory catalog.Repository.
type mockRepo struct {
	items    map[string]model.Item
	failNext error
	upserts  [][]model.Item
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]model.Item)}
}

func (m *mockRepo) fail() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockRepo) FindAll(ctx context.Context) ([]model.Item, error) {
	out := []model.Item{}
	for _, it := range m.items {
		out = append(out, it.Clone())
	}
	return out, m.fail()
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *mockRepo) IsBarcodeUnique(ctx context.Context, barcode, excludeID string) (bool, error) {
	for _, it := range m.items {
		if it.Barcode == barcode && it.ID != excludeID {
			return false, nil
		}
	}
	return true, nil
}

func (m *mockRepo) Create(ctx context.Context, item *model.Item) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *mockRepo) Update(ctx context.Context, item *model.Item) error {
	if err := m.fail(); err != nil {
		return err
	}
	stored := m.items[item.ID]
	q, txs := stored.Quantity, stored.Transactions
	stored = item.Clone()
	stored.Quantity, stored.Transactions = q, txs
	m.items[item.ID] = stored
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if err := m.fail(); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) BulkUpsert(ctx context.Context, items []model.Item) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.upserts = append(m.upserts, items)
	for i := range items {
		for _, stored := range m.items {
			if stored.Barcode == items[i].Barcode {
				items[i].ID = stored.ID
				items[i].CreatedAt = stored.CreatedAt
				break
			}
		}
		it := items[i]
		existing, ok := m.items[it.ID]
		if ok {
			it.Transactions = append(existing.Transactions, it.Transactions...)
		}
		m.items[it.ID] = it.Clone()
	}
	return nil
}

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestUseCase() (*catalogUseCase, *mockRepo, *catalog.Store) {
	repo := newMockRepo()
	store := catalog.NewStore()
	uc := NewCatalogUseCase(repo, store, cache.NewMemoryLocker(), nil, logger.NewNop()).(*catalogUseCase)
	uc.now = func() time.Time { return fixedNow }
	return uc, repo, store
}

func TestCreateItem(t *testing.T) {
	uc, repo, store := newTestUseCase()

	item, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{
		Name:      "  Blue Mug ",
		Barcode:   "MUG-1",
		BuyPrice:  decimal.NewFromInt(10),
		SellPrice: decimal.NewFromInt(15),
		Quantity:  10,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if item.Name != "Blue Mug" || !item.VatRate.Equal(model.DefaultVatRate) {
		t.Errorf("unexpected item: name %q vat %s", item.Name, item.VatRate)
	}
	if item.Quantity != 10 || len(item.Transactions) != 1 || item.Transactions[0].Type != model.TransactionIn {
		t.Fatalf("opening stock not booked: %+v", item.Transactions)
	}
	if !ledger.Reconciled(*item) {
		t.Errorf("item not reconciled")
	}
	if _, ok := repo.items[item.ID]; !ok {
		t.Errorf("item not persisted")
	}
	if _, ok := store.Get(item.ID); !ok {
		t.Errorf("item not in replica")
	}
}

func TestCreateItemGeneratesBarcode(t *testing.T) {
	uc, _, _ := newTestUseCase()

	item, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{Name: "No Code"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if len(item.Barcode) != 8 {
		t.Errorf("generated barcode %q, want 8 chars", item.Barcode)
	}
	if item.Quantity != 0 || len(item.Transactions) != 0 {
		t.Errorf("zero opening stock must not create a transaction")
	}
}

func TestCreateItemValidation(t *testing.T) {
	uc, repo, _ := newTestUseCase()
	if _, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{Name: "A", Barcode: "DUP"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input dto.CreateItemInput
		code  string
	}{
		{"missing name", dto.CreateItemInput{Name: "  "}, apperr.CodeNameRequired},
		{"negative quantity", dto.CreateItemInput{Name: "B", Quantity: -1}, apperr.CodeInvalidQuantity},
		{"negative price", dto.CreateItemInput{Name: "B", BuyPrice: decimal.NewFromInt(-1)}, apperr.CodeInvalidPrice},
		{"duplicate barcode", dto.CreateItemInput{Name: "B", Barcode: "DUP"}, apperr.CodeBarcodeExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.CreateItem(context.Background(), &tt.input)
			if !errors.Is(err, apperr.Validation(tt.code, nil)) {
				t.Errorf("got %v, want %s", err, tt.code)
			}
		})
	}
	if len(repo.items) != 1 {
		t.Errorf("rejected inputs reached the repository: %d items", len(repo.items))
	}
}

func TestCreateItemPersistenceFailureLeavesReplica(t *testing.T) {
	uc, repo, store := newTestUseCase()
	repo.failNext = errors.New("db down")

	_, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{Name: "Mug", Quantity: 3})
	if !apperr.IsKind(err, apperr.KindPersistence) {
		t.Fatalf("got %v, want persistence error", err)
	}
	if store.Len() != 0 {
		t.Errorf("replica changed after failed write")
	}
}

func TestUpdateItemKeepsQuantity(t *testing.T) {
	uc, _, _ := newTestUseCase()
	item, _ := uc.CreateItem(context.Background(), &dto.CreateItemInput{Name: "Mug", Barcode: "M1", Quantity: 4})

	name := "Big Mug"
	price := decimal.NewFromInt(25)
	got, err := uc.UpdateItem(context.Background(), &dto.UpdateItemInput{ID: item.ID, Name: &name, SellPrice: &price})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if got.Name != "Big Mug" || !got.SellPrice.Equal(price) || got.Barcode != "M1" {
		t.Errorf("fields not applied: %+v", got)
	}
	if got.Quantity != 4 || len(got.Transactions) != 1 {
		t.Errorf("update touched stock: quantity %d", got.Quantity)
	}

	if _, err := uc.UpdateItem(context.Background(), &dto.UpdateItemInput{ID: "missing", Name: &name}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestDeleteAndBulkDelete(t *testing.T) {
	uc, _, store := newTestUseCase()
	ctx := context.Background()
	a, _ := uc.CreateItem(ctx, &dto.CreateItemInput{Name: "A"})
	b, _ := uc.CreateItem(ctx, &dto.CreateItemInput{Name: "B"})
	c, _ := uc.CreateItem(ctx, &dto.CreateItemInput{Name: "C"})

	if err := uc.DeleteItem(ctx, a.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := uc.DeleteItem(ctx, a.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("second delete got %v, want not found", err)
	}

	res, err := uc.BulkDeleteItems(ctx, []string{b.ID, c.ID, "unknown"})
	if err != nil || res.Deleted != 2 {
		t.Errorf("BulkDeleteItems = (%+v, %v)", res, err)
	}
	if store.Len() != 0 {
		t.Errorf("replica still holds %d items", store.Len())
	}
}

func TestImportItems(t *testing.T) {
	uc, repo, store := newTestUseCase()
	ctx := context.Background()
	existing, _ := uc.CreateItem(ctx, &dto.CreateItemInput{Name: "Mug", Barcode: "M1", Image: "mug.png", Quantity: 10})

	res, err := uc.ImportItems(ctx, []dto.ImportRow{
		{Barcode: "M1", Name: "Mug v2", Quantity: 4, SellPrice: decimal.NewFromInt(9)},
		{Barcode: "P1", Name: "Plate", Quantity: 6},
		{Name: "Spoon"},
		{},
		{Barcode: "X", Name: "Bad", Quantity: -2},
	})
	if err != nil {
		t.Fatalf("ImportItems: %v", err)
	}
	if res.Created != 2 || res.Updated != 1 || res.Failed != 2 {
		t.Errorf("result = %+v", res)
	}

	got, _ := store.Get(existing.ID)
	if got.Name != "Mug v2" || got.Image != "mug.png" || got.Quantity != 4 {
		t.Errorf("re-imported item = %+v", got)
	}
	if len(got.Transactions) != 2 || got.Transactions[0].Type != model.TransactionOut || got.Transactions[0].Quantity != 6 {
		t.Errorf("expected an OUT 6 adjustment, got %+v", got.Transactions)
	}
	for _, it := range store.Items() {
		if !ledger.Reconciled(it) {
			t.Errorf("item %s not reconciled", it.Name)
		}
	}
	if persisted := repo.items[existing.ID]; persisted.Quantity != 4 || len(persisted.Transactions) != 2 {
		t.Errorf("durable copy diverged: %+v", persisted)
	}
}

func TestImportAdoptsStoredIdentity(t *testing.T) {
	uc, repo, store := newTestUseCase()
	created := fixedNow.AddDate(0, -1, 0)
	repo.items["stored-id"] = model.Item{
		BaseModel:    model.BaseModel{ID: "stored-id", CreatedAt: created},
		Barcode:      "S1",
		Name:         "Saucer",
		Transactions: []model.Transaction{},
	}

	res, err := uc.ImportItems(context.Background(), []dto.ImportRow{{Barcode: "S1", Name: "Saucer", Quantity: 3}})
	if err != nil {
		t.Fatalf("ImportItems: %v", err)
	}
	if res.Created != 1 {
		t.Errorf("result = %+v", res)
	}

	got, ok := store.GetByBarcode("S1")
	if !ok || got.ID != "stored-id" || !got.CreatedAt.Equal(created) {
		t.Fatalf("replica item = %+v, want stored id", got)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].ItemID != "stored-id" {
		t.Errorf("transactions = %+v", got.Transactions)
	}
	if len(repo.items) != 1 {
		t.Errorf("durable items = %d, want 1", len(repo.items))
	}
}

func TestImportStopsAtFailedChunk(t *testing.T) {
	uc, repo, store := newTestUseCase()
	rows := make([]dto.ImportRow, ImportChunkSize+10)
	for i := range rows {
		rows[i] = dto.ImportRow{Name: "Row"}
	}
	repo.failNext = errors.New("timeout")

	res, err := uc.ImportItems(context.Background(), rows)
	if err != nil {
		t.Fatalf("ImportItems: %v", err)
	}
	if res.Created != 0 || res.Failed != len(rows) {
		t.Errorf("result = %+v", res)
	}
	if store.Len() != 0 {
		t.Errorf("replica changed after failed chunk")
	}
}
