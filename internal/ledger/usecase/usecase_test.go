package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

// mockRepo mirrors durable state as item id -> transactions and quantity.
type mockRepo struct {
	mu         sync.Mutex
	quantities map[string]int
	owners     map[string]string // transaction id -> item id
	txs        map[string]model.Transaction
	failApply  error
	failRemove map[string]error // by item id
	applyCalls int
	afterApply func() // runs once the postings are stored
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		quantities: make(map[string]int),
		owners:     make(map[string]string),
		txs:        make(map[string]model.Transaction),
		failRemove: make(map[string]error),
	}
}

func (m *mockRepo) ApplyPostings(ctx context.Context, postings []ledger.Posting, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.failApply != nil {
		return m.failApply
	}
	for _, p := range postings {
		m.txs[p.Transaction.ID] = p.Transaction
		m.owners[p.Transaction.ID] = p.Transaction.ItemID
		m.quantities[p.Transaction.ItemID] += p.Delta
	}
	if m.afterApply != nil {
		m.afterApply()
	}
	return nil
}

func (m *mockRepo) FindOwners(ctx context.Context, txIDs []string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string)
	for _, id := range txIDs {
		if itemID, ok := m.owners[id]; ok {
			out[itemID] = append(out[itemID], id)
		}
	}
	return out, nil
}

func (m *mockRepo) RemoveTransactions(ctx context.Context, itemID string, txIDs []string, now time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failRemove[itemID]; err != nil {
		return nil, err
	}
	var removed []model.Transaction
	for _, id := range txIDs {
		tx, ok := m.txs[id]
		if !ok || tx.ItemID != itemID {
			continue
		}
		removed = append(removed, tx)
		m.quantities[itemID] += ledger.Reverse(tx)
		delete(m.txs, id)
		delete(m.owners, id)
	}
	return removed, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	uc    *ledgerUseCase
	repo  *mockRepo
	store *catalog.Store
	pub   *recordingPublisher
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newFixture(cfg Config) *fixture {
	repo := newMockRepo()
	store := catalog.NewStore()
	pub := &recordingPublisher{}
	uc := NewLedgerUseCase(repo, store, cache.NewMemoryLocker(), pub, nil, logger.NewNop(), cfg).(*ledgerUseCase)
	uc.now = func() time.Time { return fixedNow }
	return &fixture{uc: uc, repo: repo, store: store, pub: pub}
}

// addItem seeds an item whose stock comes from one opening IN transaction.
func (f *fixture) addItem(id, barcode, name string, qty int) {
	item := &model.Item{
		BaseModel:    model.BaseModel{ID: id},
		Barcode:      barcode,
		Name:         name,
		SellPrice:    decimal.NewFromInt(10),
		Transactions: []model.Transaction{},
	}
	if qty > 0 {
		opening := model.Transaction{ID: id + "-open", Type: model.TransactionIn, Quantity: qty, Date: fixedNow.AddDate(0, 0, -1)}
		_ = ledger.Post(item, opening, fixedNow)
		opening.ItemID = id
		f.repo.txs[opening.ID] = opening
		f.repo.owners[opening.ID] = id
		f.repo.quantities[id] = qty
	}
	f.store.Add(*item)
}

func (f *fixture) quantity(id string) int {
	it, _ := f.store.Get(id)
	return it.Quantity
}

func TestPostTransaction(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 10)

	item, err := f.uc.PostTransaction(context.Background(), &dto.PostTransactionInput{
		ItemID: "mug", Type: "out", Quantity: 3, Channel: "Perakende",
	})
	if err != nil {
		t.Fatalf("PostTransaction: %v", err)
	}
	if item.Quantity != 7 || f.repo.quantities["mug"] != 7 {
		t.Errorf("replica %d durable %d, want 7", item.Quantity, f.repo.quantities["mug"])
	}
	if got := item.Transactions[0]; got.Type != model.TransactionOut || got.Channel != model.ChannelRetail {
		t.Errorf("latest transaction = %+v", got)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].EventType != ledger.EventTransactionPosted || f.pub.events[0].Quantity != 7 {
		t.Errorf("events = %+v", f.pub.events)
	}
}

func TestPostTransactionValidation(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 10)

	tests := []struct {
		name  string
		input dto.PostTransactionInput
		kind  apperr.Kind
		code  string
	}{
		{"zero quantity", dto.PostTransactionInput{ItemID: "mug", Type: "IN"}, apperr.KindValidation, apperr.CodeInvalidQuantity},
		{"bad type", dto.PostTransactionInput{ItemID: "mug", Type: "MOVE", Quantity: 1}, apperr.KindValidation, apperr.CodeInvalidType},
		{"bad channel", dto.PostTransactionInput{ItemID: "mug", Type: "OUT", Quantity: 1, Channel: "Online"}, apperr.KindValidation, apperr.CodeInvalidChannel},
		{"unknown item", dto.PostTransactionInput{ItemID: "nope", Type: "IN", Quantity: 1}, apperr.KindNotFound, apperr.CodeItemNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.PostTransaction(context.Background(), &tt.input)
			if !errors.Is(err, &apperr.Error{Kind: tt.kind, Code: tt.code}) {
				t.Errorf("got %v, want %s/%s", err, tt.kind, tt.code)
			}
		})
	}
	if f.repo.applyCalls != 0 || f.quantity("mug") != 10 {
		t.Errorf("rejected postings mutated state")
	}
}

func TestPostTransactionNegativePolicy(t *testing.T) {
	allow := newFixture(Config{AllowNegative: true})
	allow.addItem("mug", "M1", "Mug", 2)
	if _, err := allow.uc.PostTransaction(context.Background(), &dto.PostTransactionInput{ItemID: "mug", Type: "OUT", Quantity: 5}); err != nil {
		t.Fatalf("permissive ledger rejected oversell: %v", err)
	}
	if q := allow.quantity("mug"); q != -3 {
		t.Errorf("quantity = %d, want -3", q)
	}

	guard := newFixture(Config{AllowNegative: false})
	guard.addItem("mug", "M1", "Mug", 2)
	_, err := guard.uc.PostTransaction(context.Background(), &dto.PostTransactionInput{ItemID: "mug", Type: "OUT", Quantity: 5})
	if !errors.Is(err, apperr.Validation(apperr.CodeInsufficient, nil)) {
		t.Fatalf("got %v, want insufficient stock", err)
	}
	if q := guard.quantity("mug"); q != 2 {
		t.Errorf("quantity = %d, want 2", q)
	}
}

func TestPostTransactionPersistenceFailure(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 10)
	before, _ := f.store.Get("mug")
	f.repo.failApply = errors.New("connection reset")

	_, err := f.uc.PostTransaction(context.Background(), &dto.PostTransactionInput{ItemID: "mug", Type: "IN", Quantity: 4})
	if !apperr.IsKind(err, apperr.KindPersistence) {
		t.Fatalf("got %v, want persistence error", err)
	}
	after, _ := f.store.Get("mug")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("replica changed after failed write (-before +after):\n%s", diff)
	}
	if len(f.pub.events) != 0 {
		t.Errorf("event published for failed write")
	}
}

func TestReceiveByBarcode(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 1)

	item, err := f.uc.ReceiveByBarcode(context.Background(), &dto.ReceiveInput{Barcode: "M1"})
	if err != nil || item.Quantity != 2 {
		t.Fatalf("ReceiveByBarcode = (%v, %v), want quantity 2", item, err)
	}
	if _, err := f.uc.ReceiveByBarcode(context.Background(), &dto.ReceiveInput{Barcode: "m1"}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("barcode lookup must be exact, got %v", err)
	}
}

func TestCompleteSale(t *testing.T) {
	f := newFixture(Config{})
	f.addItem("mug", "M1", "Mug", 5)
	f.addItem("plate", "P1", "Plate", 2)

	res, err := f.uc.CompleteSale(context.Background(), &dto.SaleInput{Lines: []dto.SaleLine{
		{Barcode: "M1", Quantity: 2},
		{ItemID: "plate", Quantity: 2},
		{ItemID: "mug", Quantity: 1},
	}})
	if err != nil {
		t.Fatalf("CompleteSale: %v", err)
	}
	if len(res.Transactions) != 3 || len(res.Items) != 2 {
		t.Errorf("result = %d transactions, %d items", len(res.Transactions), len(res.Items))
	}
	for _, tx := range res.Transactions {
		if tx.Channel != DefaultSaleChannel {
			t.Errorf("channel = %q, want %q", tx.Channel, DefaultSaleChannel)
		}
	}
	if f.quantity("mug") != 2 || f.quantity("plate") != 0 {
		t.Errorf("quantities = (%d, %d), want (2, 0)", f.quantity("mug"), f.quantity("plate"))
	}
	if f.repo.applyCalls != 1 {
		t.Errorf("sale written in %d calls, want 1", f.repo.applyCalls)
	}
}

func TestCompleteSaleAppliesRemainingItemsAfterReplicaMiss(t *testing.T) {
	f := newFixture(Config{})
	f.addItem("bowl", "B1", "Bowl", 4)
	f.addItem("plate", "P1", "Plate", 4)
	f.repo.afterApply = func() { f.store.Remove("bowl") }

	res, err := f.uc.CompleteSale(context.Background(), &dto.SaleInput{Lines: []dto.SaleLine{
		{ItemID: "bowl", Quantity: 1},
		{ItemID: "plate", Quantity: 3},
	}})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v, want not found for the vanished item", err)
	}
	if res == nil || len(res.Transactions) != 2 {
		t.Fatalf("result = %+v, want both committed transactions", res)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "plate" || res.Items[0].Quantity != 1 {
		t.Errorf("applied items = %+v", res.Items)
	}
	if f.quantity("plate") != 1 || f.repo.quantities["plate"] != 1 {
		t.Errorf("plate replica %d durable %d, want 1", f.quantity("plate"), f.repo.quantities["plate"])
	}
}

func TestCompleteSaleRejectsWithoutMutation(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 3)
	f.addItem("plate", "P1", "Plate", 10)
	before := f.store.Items()

	// Each line fits on its own; together they oversell the mug.
	_, err := f.uc.CompleteSale(context.Background(), &dto.SaleInput{Lines: []dto.SaleLine{
		{ItemID: "plate", Quantity: 1},
		{ItemID: "mug", Quantity: 2},
		{Barcode: "M1", Quantity: 2},
	}})
	e, ok := apperr.As(err)
	if !ok || e.Code != apperr.CodeInsufficient || e.Fields["Name"] != "Mug" {
		t.Fatalf("got %v, want insufficient stock for Mug", err)
	}
	if diff := cmp.Diff(before, f.store.Items()); diff != "" {
		t.Errorf("replica changed (-before +after):\n%s", diff)
	}
	if f.repo.applyCalls != 0 {
		t.Errorf("repository called for rejected sale")
	}

	if _, err := f.uc.CompleteSale(context.Background(), &dto.SaleInput{}); !errors.Is(err, apperr.Validation(apperr.CodeEmptySale, nil)) {
		t.Errorf("empty sale got %v", err)
	}
}

func TestRemoveTransactions(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 10)
	f.addItem("plate", "P1", "Plate", 4)
	ctx := context.Background()

	out, _ := f.uc.PostTransaction(ctx, &dto.PostTransactionInput{ItemID: "mug", Type: "OUT", Quantity: 3})
	outID := out.Transactions[0].ID

	res, err := f.uc.RemoveTransactions(ctx, []string{outID, "plate-open", "ghost", outID})
	if err != nil {
		t.Fatalf("RemoveTransactions: %v", err)
	}
	if res.Removed != 2 {
		t.Errorf("removed = %d, want 2", res.Removed)
	}
	if diff := cmp.Diff([]string{"ghost"}, res.NotMatched); diff != "" {
		t.Errorf("not matched mismatch (-want +got):\n%s", diff)
	}
	if f.quantity("mug") != 10 || f.quantity("plate") != 0 {
		t.Errorf("quantities = (%d, %d), want (10, 0)", f.quantity("mug"), f.quantity("plate"))
	}
	for _, it := range f.store.Items() {
		if !ledger.Reconciled(it) || it.Quantity != f.repo.quantities[it.ID] {
			t.Errorf("item %s diverged: replica %d durable %d", it.ID, it.Quantity, f.repo.quantities[it.ID])
		}
	}

	empty, err := f.uc.RemoveTransactions(ctx, nil)
	if err != nil || empty.Removed != 0 {
		t.Errorf("empty removal = (%+v, %v)", empty, err)
	}
}

func TestRemoveTransactionsPartialFailure(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("a", "A", "A", 5)
	f.addItem("b", "B", "B", 5)
	f.repo.failRemove["b"] = errors.New("deadlock detected")

	res, err := f.uc.RemoveTransactions(context.Background(), []string{"a-open", "b-open"})
	if !apperr.IsKind(err, apperr.KindPersistence) {
		t.Fatalf("got %v, want persistence error", err)
	}
	if diff := cmp.Diff([]string{"a"}, res.Items); diff != "" {
		t.Errorf("completed items mismatch (-want +got):\n%s", diff)
	}
	if f.quantity("a") != 0 || f.quantity("b") != 5 {
		t.Errorf("quantities = (%d, %d), want (0, 5)", f.quantity("a"), f.quantity("b"))
	}
}

func TestListTransactions(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Blue Mug", 10)
	f.addItem("plate", "P1", "Plate", 4)
	ctx := context.Background()
	d := fixedNow.Add(time.Hour)
	_, _ = f.uc.PostTransaction(ctx, &dto.PostTransactionInput{ItemID: "plate", Type: "OUT", Quantity: 1, Date: &d})

	all, total, _ := f.uc.ListTransactions(ctx, &dto.TransactionFilters{})
	if total != 3 || all[0].ItemID != "plate" || all[0].Type != model.TransactionOut {
		t.Errorf("unexpected feed: total %d first %+v", total, all[0])
	}

	mugs, _, _ := f.uc.ListTransactions(ctx, &dto.TransactionFilters{Query: "blue"})
	if len(mugs) != 1 || mugs[0].ItemName != "Blue Mug" {
		t.Errorf("query filter = %+v", mugs)
	}

	outs, _, _ := f.uc.ListTransactions(ctx, &dto.TransactionFilters{Type: model.TransactionOut})
	if len(outs) != 1 {
		t.Errorf("type filter returned %d", len(outs))
	}

	start := fixedNow
	windowed, _, _ := f.uc.ListTransactions(ctx, &dto.TransactionFilters{StartDate: &start})
	if len(windowed) != 1 {
		t.Errorf("date filter returned %d", len(windowed))
	}

	page, total, _ := f.uc.ListTransactions(ctx, &dto.TransactionFilters{Page: 2, PageSize: 2})
	if total != 3 || len(page) != 1 {
		t.Errorf("page 2 = %d of %d", len(page), total)
	}
}

func TestListTransactionsPageBounds(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 10)
	f.addItem("plate", "P1", "Plate", 4)
	ctx := context.Background()

	filters := &dto.TransactionFilters{Page: 4611686018427387905, PageSize: 2}
	got, total, err := f.uc.ListTransactions(ctx, filters)
	if err != nil || total != 2 || len(got) != 0 || got == nil {
		t.Errorf("past last page = %v (total %d, err %v), want empty page", got, total, err)
	}

	filters = &dto.TransactionFilters{Page: 1, PageSize: 1 << 40}
	got, _, _ = f.uc.ListTransactions(ctx, filters)
	if len(got) != 2 || filters.PageSize != dto.MaxPageSize {
		t.Errorf("page size %d returned %d rows", filters.PageSize, len(got))
	}

	filters = &dto.TransactionFilters{Page: -3, PageSize: 1}
	got, _, _ = f.uc.ListTransactions(ctx, filters)
	if len(got) != 1 || filters.Page != 1 {
		t.Errorf("negative page normalized to %d with %d rows", filters.Page, len(got))
	}
}

func TestConcurrentPostingsStayReconciled(t *testing.T) {
	f := newFixture(Config{AllowNegative: true})
	f.addItem("mug", "M1", "Mug", 100)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := "IN"
			if i%2 == 0 {
				typ = "OUT"
			}
			_, _ = f.uc.PostTransaction(context.Background(), &dto.PostTransactionInput{ItemID: "mug", Type: typ, Quantity: i + 1})
		}(i)
	}
	wg.Wait()

	it, _ := f.store.Get("mug")
	if !ledger.Reconciled(it) || it.Quantity != f.repo.quantities["mug"] {
		t.Errorf("replica %d durable %d recomputed %d", it.Quantity, f.repo.quantities["mug"], ledger.Recompute(it))
	}
}
