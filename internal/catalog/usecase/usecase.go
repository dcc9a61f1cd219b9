package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/pkg/metrics"
)

// ImportChunkSize is the number of rows written per database transaction.
const ImportChunkSize = 50

const unnamedItem = "Unnamed Item"

type catalogUseCase struct {
	repo    catalog.Repository
	store   *catalog.Store
	locker  ledger.Locker
	metrics *metrics.Metrics
	logger  logger.ZapLogger
	now     func() time.Time
}

func NewCatalogUseCase(repo catalog.Repository, store *catalog.Store, locker ledger.Locker, m *metrics.Metrics, log logger.ZapLogger) catalog.UseCase {
	return &catalogUseCase{
		repo:    repo,
		store:   store,
		locker:  locker,
		metrics: m,
		logger:  log,
		now:     time.Now,
	}
}

func generateBarcode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

func validatePrices(prices ...decimal.Decimal) error {
	for _, p := range prices {
		if p.IsNegative() {
			return apperr.Validation(apperr.CodeInvalidPrice, map[string]interface{}{"Value": p.String()})
		}
	}
	return nil
}

func (uc *catalogUseCase) checkBarcode(ctx context.Context, barcode, excludeID string) error {
	if existing, ok := uc.store.GetByBarcode(barcode); ok && existing.ID != excludeID {
		return apperr.Validation(apperr.CodeBarcodeExists, map[string]interface{}{"Barcode": barcode})
	}
	unique, err := uc.repo.IsBarcodeUnique(ctx, barcode, excludeID)
	if err != nil {
		return apperr.Persistence(err)
	}
	if !unique {
		return apperr.Validation(apperr.CodeBarcodeExists, map[string]interface{}{"Barcode": barcode})
	}
	return nil
}

func (uc *catalogUseCase) CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.Item, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperr.Validation(apperr.CodeNameRequired, nil)
	}
	if input.Quantity < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidQuantity, map[string]interface{}{"Quantity": input.Quantity})
	}
	vat := model.DefaultVatRate
	if input.VatRate != nil {
		vat = *input.VatRate
	}
	if err := validatePrices(vat, input.BuyPrice, input.SellPrice); err != nil {
		return nil, err
	}

	barcode := input.Barcode
	if barcode == "" {
		barcode = generateBarcode()
	}
	if err := uc.checkBarcode(ctx, barcode, ""); err != nil {
		return nil, err
	}

	now := uc.now()
	item := &model.Item{
		BaseModel: model.BaseModel{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Barcode:      barcode,
		StockCode:    input.StockCode,
		Name:         name,
		Image:        input.Image,
		Description:  input.Description,
		Brand:        input.Brand,
		VatRate:      vat,
		BuyPrice:     input.BuyPrice,
		SellPrice:    input.SellPrice,
		Transactions: []model.Transaction{},
	}

	// Opening stock goes through the ledger so quantity starts reconciled.
	if input.Quantity > 0 {
		opening := model.Transaction{
			ID:        uuid.New().String(),
			Date:      now,
			Type:      model.TransactionIn,
			Quantity:  input.Quantity,
			CreatedAt: now,
		}
		if err := ledger.Post(item, opening, now); err != nil {
			return nil, err
		}
	}

	if err := uc.repo.Create(ctx, item); err != nil {
		uc.logger.Error("failed to create item", zap.String("barcode", barcode), zap.Error(err))
		uc.metrics.RecordFailure("create_item", "persistence")
		return nil, apperr.Persistence(err)
	}

	uc.store.Add(*item)
	uc.metrics.SetItemQuantity(item.ID, item.Quantity)
	return item, nil
}

func (uc *catalogUseCase) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, ok := uc.store.Get(id)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": id})
	}
	return &item, nil
}

func (uc *catalogUseCase) GetItemByBarcode(ctx context.Context, barcode string) (*model.Item, error) {
	item, ok := uc.store.GetByBarcode(barcode)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"Barcode": barcode})
	}
	return &item, nil
}

func (uc *catalogUseCase) SearchItems(ctx context.Context, query string) ([]model.Item, error) {
	return uc.store.Search(query), nil
}

func (uc *catalogUseCase) ListItems(ctx context.Context) ([]model.Item, error) {
	items := uc.store.Items()
	catalog.SortByUpdated(items)
	return items, nil
}

func (uc *catalogUseCase) UpdateItem(ctx context.Context, input *dto.UpdateItemInput) (*model.Item, error) {
	unlock, err := uc.locker.Lock(ctx, ledger.LockKey(input.ID))
	if err != nil {
		return nil, apperr.Validation(apperr.CodeSystemBusy, nil)
	}
	defer unlock()

	current, ok := uc.store.Get(input.ID)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": input.ID})
	}

	updated := current
	applyUpdate(&updated, input)
	updated.Name = strings.TrimSpace(updated.Name)
	if updated.Name == "" {
		return nil, apperr.Validation(apperr.CodeNameRequired, nil)
	}
	if updated.Barcode == "" {
		updated.Barcode = current.Barcode
	}
	if err := validatePrices(updated.VatRate, updated.BuyPrice, updated.SellPrice); err != nil {
		return nil, err
	}
	if updated.Barcode != current.Barcode {
		if err := uc.checkBarcode(ctx, updated.Barcode, updated.ID); err != nil {
			return nil, err
		}
	}

	now := uc.now()
	updated.UpdatedAt = now
	if err := uc.repo.Update(ctx, &updated); err != nil {
		uc.logger.Error("failed to update item", zap.String("item_id", input.ID), zap.Error(err))
		uc.metrics.RecordFailure("update_item", "persistence")
		return nil, apperr.Persistence(err)
	}

	result, err := uc.store.Mutate(input.ID, func(it *model.Item) error {
		applyUpdate(it, input)
		it.Name = updated.Name
		it.Barcode = updated.Barcode
		it.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": input.ID})
	}
	return &result, nil
}

// applyUpdate copies the non-nil fields of input onto it. Quantity and
// transactions are never touched.
func applyUpdate(it *model.Item, input *dto.UpdateItemInput) {
	if input.Barcode != nil {
		it.Barcode = *input.Barcode
	}
	if input.StockCode != nil {
		it.StockCode = *input.StockCode
	}
	if input.Name != nil {
		it.Name = *input.Name
	}
	if input.Image != nil {
		it.Image = *input.Image
	}
	if input.Description != nil {
		it.Description = *input.Description
	}
	if input.Brand != nil {
		it.Brand = *input.Brand
	}
	if input.VatRate != nil {
		it.VatRate = *input.VatRate
	}
	if input.BuyPrice != nil {
		it.BuyPrice = *input.BuyPrice
	}
	if input.SellPrice != nil {
		it.SellPrice = *input.SellPrice
	}
}

func (uc *catalogUseCase) DeleteItem(ctx context.Context, id string) error {
	unlock, err := uc.locker.Lock(ctx, ledger.LockKey(id))
	if err != nil {
		return apperr.Validation(apperr.CodeSystemBusy, nil)
	}
	defer unlock()

	if _, ok := uc.store.Get(id); !ok {
		return apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": id})
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		uc.logger.Error("failed to delete item", zap.String("item_id", id), zap.Error(err))
		uc.metrics.RecordFailure("delete_item", "persistence")
		return apperr.Persistence(err)
	}
	uc.store.Remove(id)
	uc.metrics.DeleteItem(id)
	return nil
}

// BulkDeleteItems removes every listed item. Unknown ids are ignored.
func (uc *catalogUseCase) BulkDeleteItems(ctx context.Context, ids []string) (*dto.BulkDeleteResult, error) {
	if len(ids) == 0 {
		return &dto.BulkDeleteResult{}, nil
	}
	if _, err := uc.repo.BulkDelete(ctx, ids); err != nil {
		uc.logger.Error("failed to bulk delete items", zap.Int("count", len(ids)), zap.Error(err))
		uc.metrics.RecordFailure("bulk_delete_items", "persistence")
		return nil, apperr.Persistence(err)
	}
	n := uc.store.RemoveMany(ids)
	for _, id := range ids {
		uc.metrics.DeleteItem(id)
	}
	return &dto.BulkDeleteResult{Deleted: n}, nil
}

// ImportItems upserts typed rows by barcode, ImportChunkSize rows per
// database transaction. A row for a known barcode keeps the stored identity
// and media fields; its quantity change is booked as an adjustment
// transaction. The import stops at the first chunk that fails to persist and
// counts the remaining rows as failed.
func (uc *catalogUseCase) ImportItems(ctx context.Context, rows []dto.ImportRow) (*dto.ImportResult, error) {
	result := &dto.ImportResult{}

	var valid []dto.ImportRow
	for i, row := range rows {
		if err := validateRow(row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, err.Code))
			continue
		}
		valid = append(valid, row)
	}

	for start := 0; start < len(valid); start += ImportChunkSize {
		end := start + ImportChunkSize
		if end > len(valid) {
			end = len(valid)
		}
		created, updated, err := uc.importChunk(ctx, valid[start:end])
		if err != nil {
			uc.logger.Error("failed to import chunk",
				zap.Int("from", start+1),
				zap.Int("to", end),
				zap.Error(err),
			)
			uc.metrics.RecordFailure("import_items", "persistence")
			result.Failed += len(valid) - start
			result.Errors = append(result.Errors, fmt.Sprintf("rows %d-%d: %s", start+1, len(valid), apperr.CodePersistence))
			break
		}
		result.Created += created
		result.Updated += updated
	}

	uc.logger.Info("catalog import finished",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func validateRow(row dto.ImportRow) *apperr.Error {
	if strings.TrimSpace(row.Name) == "" && strings.TrimSpace(row.Barcode) == "" {
		return apperr.Validation(apperr.CodeNameRequired, nil)
	}
	if row.Quantity < 0 {
		return apperr.Validation(apperr.CodeInvalidQuantity, nil)
	}
	vat := model.DefaultVatRate
	if row.VatRate != nil {
		vat = *row.VatRate
	}
	for _, p := range []decimal.Decimal{vat, row.BuyPrice, row.SellPrice} {
		if p.IsNegative() {
			return apperr.Validation(apperr.CodeInvalidPrice, nil)
		}
	}
	return nil
}

type pendingImport struct {
	item     model.Item
	existing bool
	newTx    []model.Transaction // transactions to insert for this row
}

func (uc *catalogUseCase) importChunk(ctx context.Context, rows []dto.ImportRow) (created, updated int, err error) {
	now := uc.now()

	// Barcodes are resolved up front so known items can be locked in a stable order.
	for i := range rows {
		if rows[i].Barcode == "" {
			rows[i].Barcode = generateBarcode()
		}
	}
	var lockIDs []string
	for _, row := range rows {
		if it, ok := uc.store.GetByBarcode(row.Barcode); ok {
			lockIDs = append(lockIDs, it.ID)
		}
	}
	unlock, err := ledger.LockAll(ctx, uc.locker, lockIDs)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()

	order := []string{}
	pending := map[string]*pendingImport{}
	for _, row := range rows {
		p, seen := pending[row.Barcode]
		if !seen {
			p = &pendingImport{}
			if it, ok := uc.store.GetByBarcode(row.Barcode); ok {
				p.item = it
				p.existing = true
			} else {
				p.item = model.Item{
					BaseModel:    model.BaseModel{ID: uuid.New().String(), CreatedAt: now},
					Barcode:      row.Barcode,
					VatRate:      model.DefaultVatRate,
					Transactions: []model.Transaction{},
				}
				if row.VatRate != nil {
					p.item.VatRate = *row.VatRate
				}
			}
			pending[row.Barcode] = p
			order = append(order, row.Barcode)
		}

		it := &p.item
		it.Name = strings.TrimSpace(row.Name)
		if it.Name == "" {
			it.Name = unnamedItem
		}
		it.Brand = row.Brand
		it.StockCode = row.StockCode
		it.BuyPrice = row.BuyPrice
		it.SellPrice = row.SellPrice
		it.UpdatedAt = now

		if diff := row.Quantity - it.Quantity; diff != 0 {
			adj := model.Transaction{
				ID:        uuid.New().String(),
				Date:      now,
				Type:      model.TransactionIn,
				Quantity:  diff,
				CreatedAt: now,
			}
			if diff < 0 {
				adj.Type = model.TransactionOut
				adj.Quantity = -diff
			}
			if err := ledger.Post(it, adj, now); err != nil {
				return 0, 0, err
			}
			adj.ItemID = it.ID
			p.newTx = append(p.newTx, adj)
		}
	}

	batch := make([]model.Item, 0, len(order))
	for _, barcode := range order {
		p := pending[barcode]
		row := p.item
		row.Transactions = p.newTx
		batch = append(batch, row)
	}
	if err := uc.repo.BulkUpsert(ctx, batch); err != nil {
		return 0, 0, apperr.Persistence(err)
	}

	for i, barcode := range order {
		p := pending[barcode]
		if id := batch[i].ID; id != p.item.ID {
			// The barcode was already stored under another id.
			p.item.ID = id
			p.item.CreatedAt = batch[i].CreatedAt
			for j := range p.item.Transactions {
				p.item.Transactions[j].ItemID = id
			}
		}
		if p.existing {
			uc.store.Replace(p.item)
			updated++
		} else {
			uc.store.Add(p.item)
			created++
		}
		uc.metrics.SetItemQuantity(p.item.ID, p.item.Quantity)
	}
	return created, updated, nil
}
