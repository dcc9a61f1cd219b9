package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/pkg/metrics"
)

// DefaultSaleChannel tags sales that arrive without a channel.
const DefaultSaleChannel = model.ChannelMarketplace

type Config struct {
	// AllowNegative lets a direct posting drive stock below zero. Sales are
	// always guarded.
	AllowNegative bool
}

type ledgerUseCase struct {
	repo      ledger.Repository
	store     *catalog.Store
	locker    ledger.Locker
	publisher ledger.EventPublisher
	metrics   *metrics.Metrics
	logger    logger.ZapLogger
	cfg       Config
	now       func() time.Time
}

func NewLedgerUseCase(
	repo ledger.Repository,
	store *catalog.Store,
	locker ledger.Locker,
	publisher ledger.EventPublisher,
	m *metrics.Metrics,
	log logger.ZapLogger,
	cfg Config,
) ledger.UseCase {
	if publisher == nil {
		publisher = ledger.NoopPublisher{}
	}
	return &ledgerUseCase{
		repo:      repo,
		store:     store,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
	}
}

func parseType(s string) model.TransactionType {
	return model.TransactionType(strings.ToUpper(strings.TrimSpace(s)))
}

func parseChannel(s string) (model.Channel, error) {
	c, ok := model.ParseChannel(s)
	if !ok {
		return model.ChannelNone, apperr.Validation(apperr.CodeInvalidChannel, map[string]interface{}{"Channel": s})
	}
	return c, nil
}

func insufficient(item model.Item, requested int) error {
	return apperr.Validation(apperr.CodeInsufficient, map[string]interface{}{
		"Name":      item.Name,
		"Available": item.Quantity,
		"Requested": requested,
	})
}

func (uc *ledgerUseCase) PostTransaction(ctx context.Context, input *dto.PostTransactionInput) (*model.Item, error) {
	channel, err := parseChannel(input.Channel)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	date := now
	if input.Date != nil {
		date = *input.Date
	}
	tx := model.Transaction{
		ID:        uuid.New().String(),
		ItemID:    input.ItemID,
		Date:      date,
		Type:      parseType(input.Type),
		Quantity:  input.Quantity,
		Channel:   channel,
		CreatedAt: now,
	}
	if err := ledger.Validate(tx); err != nil {
		uc.metrics.RecordFailure("post_transaction", "validation")
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, ledger.LockKey(input.ItemID))
	if err != nil {
		uc.logger.Warn("failed to lock item", zap.String("item_id", input.ItemID), zap.Error(err))
		uc.metrics.RecordFailure("post_transaction", "busy")
		return nil, apperr.Validation(apperr.CodeSystemBusy, nil)
	}
	defer unlock()

	current, ok := uc.store.Get(input.ItemID)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": input.ItemID})
	}
	if !uc.cfg.AllowNegative && tx.Type == model.TransactionOut && current.Quantity < tx.Quantity {
		uc.metrics.RecordFailure("post_transaction", "insufficient_stock")
		return nil, insufficient(current, tx.Quantity)
	}

	if err := uc.repo.ApplyPostings(ctx, []ledger.Posting{{Transaction: tx, Delta: ledger.Delta(tx)}}, now); err != nil {
		uc.logger.Error("failed to persist stock transaction",
			zap.String("item_id", input.ItemID),
			zap.String("type", string(tx.Type)),
			zap.Error(err),
		)
		uc.metrics.RecordFailure("post_transaction", "persistence")
		return nil, apperr.Persistence(err)
	}

	item, err := uc.store.Mutate(input.ItemID, func(it *model.Item) error {
		return ledger.Post(it, tx, now)
	})
	if err != nil {
		return nil, uc.replicaMiss(input.ItemID, err)
	}

	uc.metrics.RecordPosting(string(tx.Type), string(tx.Channel), tx.Quantity)
	uc.metrics.SetItemQuantity(item.ID, item.Quantity)
	uc.publish(ctx, ledger.EventTransactionPosted, item, []model.Transaction{tx})
	return &item, nil
}

// replicaMiss handles an item that vanished from the replica after its
// durable write, which only happens when it was deleted concurrently.
func (uc *ledgerUseCase) replicaMiss(itemID string, err error) error {
	if errors.Is(err, catalog.ErrNotInReplica) {
		uc.logger.Warn("item removed from replica during ledger write", zap.String("item_id", itemID))
		return apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": itemID})
	}
	return err
}

func (uc *ledgerUseCase) ReceiveByBarcode(ctx context.Context, input *dto.ReceiveInput) (*model.Item, error) {
	item, ok := uc.store.GetByBarcode(input.Barcode)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"Barcode": input.Barcode})
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	return uc.PostTransaction(ctx, &dto.PostTransactionInput{
		ItemID:   item.ID,
		Type:     string(model.TransactionIn),
		Quantity: qty,
	})
}

func (uc *ledgerUseCase) resolveLine(line dto.SaleLine) (model.Item, error) {
	if line.ItemID != "" {
		if it, ok := uc.store.Get(line.ItemID); ok {
			return it, nil
		}
		return model.Item{}, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": line.ItemID})
	}
	if it, ok := uc.store.GetByBarcode(line.Barcode); ok {
		return it, nil
	}
	return model.Item{}, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"Barcode": line.Barcode})
}

// CompleteSale books every line as an OUT transaction. Stock is checked per
// item against the summed quantity of all its lines, and either every line
// is recorded or none is.
func (uc *ledgerUseCase) CompleteSale(ctx context.Context, input *dto.SaleInput) (*dto.SaleResult, error) {
	if len(input.Lines) == 0 {
		return nil, apperr.Validation(apperr.CodeEmptySale, nil)
	}
	channel, err := parseChannel(input.Channel)
	if err != nil {
		return nil, err
	}
	if channel == model.ChannelNone {
		channel = DefaultSaleChannel
	}

	now := uc.now()
	date := now
	if input.Date != nil {
		date = *input.Date
	}

	txs := make([]model.Transaction, 0, len(input.Lines))
	itemIDs := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		item, err := uc.resolveLine(line)
		if err != nil {
			return nil, err
		}
		tx := model.Transaction{
			ID:        uuid.New().String(),
			ItemID:    item.ID,
			Date:      date,
			Type:      model.TransactionOut,
			Quantity:  line.Quantity,
			Channel:   channel,
			CreatedAt: now,
		}
		if err := ledger.Validate(tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		itemIDs = append(itemIDs, item.ID)
	}

	unlock, err := ledger.LockAll(ctx, uc.locker, itemIDs)
	if err != nil {
		uc.metrics.RecordFailure("complete_sale", "busy")
		return nil, err
	}
	defer unlock()

	requested := make(map[string]int)
	for _, tx := range txs {
		requested[tx.ItemID] += tx.Quantity
	}
	for _, id := range sortedKeys(requested) {
		item, ok := uc.store.Get(id)
		if !ok {
			return nil, apperr.NotFound(apperr.CodeItemNotFound, map[string]interface{}{"ID": id})
		}
		if item.Quantity < requested[id] {
			uc.metrics.RecordFailure("complete_sale", "insufficient_stock")
			return nil, insufficient(item, requested[id])
		}
	}

	postings := make([]ledger.Posting, len(txs))
	for i, tx := range txs {
		postings[i] = ledger.Posting{Transaction: tx, Delta: ledger.Delta(tx)}
	}
	if err := uc.repo.ApplyPostings(ctx, postings, now); err != nil {
		uc.logger.Error("failed to persist sale", zap.Int("lines", len(txs)), zap.Error(err))
		uc.metrics.RecordFailure("complete_sale", "persistence")
		return nil, apperr.Persistence(err)
	}

	byItem := make(map[string][]model.Transaction)
	for _, tx := range txs {
		byItem[tx.ItemID] = append(byItem[tx.ItemID], tx)
	}
	// The sale is committed; every item still present is applied even if
	// another one vanished from the replica meanwhile.
	result := &dto.SaleResult{Transactions: txs, Items: []model.Item{}}
	var applyErr error
	for _, id := range sortedKeys(requested) {
		item, err := uc.store.Mutate(id, func(it *model.Item) error {
			for _, tx := range byItem[id] {
				if err := ledger.Post(it, tx, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if applyErr == nil {
				applyErr = uc.replicaMiss(id, err)
			}
			continue
		}
		for _, tx := range byItem[id] {
			uc.metrics.RecordPosting(string(tx.Type), string(tx.Channel), tx.Quantity)
		}
		uc.metrics.SetItemQuantity(item.ID, item.Quantity)
		uc.publish(ctx, ledger.EventTransactionPosted, item, byItem[id])
		result.Items = append(result.Items, item)
	}

	if applyErr != nil {
		uc.logger.Error("sale committed but not fully applied to replica",
			zap.Int("applied_items", len(result.Items)),
			zap.Int("items", len(requested)),
			zap.Error(applyErr),
		)
		return result, applyErr
	}
	uc.logger.Info("sale completed", zap.Int("lines", len(txs)), zap.String("channel", string(channel)))
	return result, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RemoveTransactions deletes the given transactions and reverses their effect,
// one item at a time. Ids that match nothing are reported back but are not an
// error. If an item fails, items handled before it stay committed and the
// partial result is returned with the error.
func (uc *ledgerUseCase) RemoveTransactions(ctx context.Context, ids []string) (*dto.RemovalResult, error) {
	result := &dto.RemovalResult{Items: []string{}}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return result, nil
	}

	owners, err := uc.repo.FindOwners(ctx, ids)
	if err != nil {
		uc.logger.Error("failed to resolve transaction owners", zap.Error(err))
		return nil, apperr.Persistence(err)
	}

	matched := make(map[string]struct{})
	itemIDs := make([]string, 0, len(owners))
	for itemID, txIDs := range owners {
		itemIDs = append(itemIDs, itemID)
		for _, id := range txIDs {
			matched[id] = struct{}{}
		}
	}
	sort.Strings(itemIDs)
	for _, id := range ids {
		if _, ok := matched[id]; !ok {
			result.NotMatched = append(result.NotMatched, id)
		}
	}

	for _, itemID := range itemIDs {
		n, err := uc.removeFromItem(ctx, itemID, owners[itemID])
		if err != nil {
			uc.logger.Error("failed to remove stock transactions",
				zap.String("item_id", itemID),
				zap.Strings("completed_items", result.Items),
				zap.Error(err),
			)
			return result, err
		}
		result.Removed += n
		result.Items = append(result.Items, itemID)
	}

	uc.metrics.RecordRemovals(result.Removed)
	return result, nil
}

func (uc *ledgerUseCase) removeFromItem(ctx context.Context, itemID string, txIDs []string) (int, error) {
	unlock, err := uc.locker.Lock(ctx, ledger.LockKey(itemID))
	if err != nil {
		uc.metrics.RecordFailure("remove_transactions", "busy")
		return 0, apperr.Validation(apperr.CodeSystemBusy, nil)
	}
	defer unlock()

	now := uc.now()
	removed, err := uc.repo.RemoveTransactions(ctx, itemID, txIDs, now)
	if err != nil {
		uc.metrics.RecordFailure("remove_transactions", "persistence")
		return 0, apperr.Persistence(err)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	set := make(map[string]struct{}, len(removed))
	for _, tx := range removed {
		set[tx.ID] = struct{}{}
	}
	item, err := uc.store.Mutate(itemID, func(it *model.Item) error {
		ledger.Remove(it, set, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, catalog.ErrNotInReplica) {
			uc.logger.Warn("removed transactions of an item missing from replica", zap.String("item_id", itemID))
			return len(removed), nil
		}
		return 0, err
	}

	uc.metrics.SetItemQuantity(item.ID, item.Quantity)
	uc.publish(ctx, ledger.EventTransactionsRemoved, item, removed)
	return len(removed), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ListTransactions flattens the movement history of every item, newest
// first. The date bounds are inclusive.
func (uc *ledgerUseCase) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]dto.Movement, int, error) {
	q := strings.ToLower(f.Query)

	var out []dto.Movement
	for _, item := range uc.store.Items() {
		if q != "" && !strings.Contains(strings.ToLower(item.Name), q) && !strings.Contains(strings.ToLower(item.Barcode), q) {
			continue
		}
		for _, tx := range item.Transactions {
			if f.Type != "" && tx.Type != f.Type {
				continue
			}
			if f.StartDate != nil && tx.Date.Before(*f.StartDate) {
				continue
			}
			if f.EndDate != nil && tx.Date.After(*f.EndDate) {
				continue
			}
			out = append(out, dto.Movement{
				Transaction: tx,
				ItemID:      item.ID,
				ItemName:    item.Name,
				ItemBarcode: item.Barcode,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})

	total := len(out)
	if f.PageSize > 0 {
		if f.PageSize > dto.MaxPageSize {
			f.PageSize = dto.MaxPageSize
		}
		if f.Page < 1 {
			f.Page = 1
		}
		pages := (total + f.PageSize - 1) / f.PageSize
		if f.Page > pages {
			out = nil
		} else {
			start := (f.Page - 1) * f.PageSize
			end := start + f.PageSize
			if end > total {
				end = total
			}
			out = out[start:end]
		}
	}
	if out == nil {
		out = []dto.Movement{}
	}
	return out, total, nil
}

func (uc *ledgerUseCase) publish(ctx context.Context, typ ledger.EventType, item model.Item, txs []model.Transaction) {
	event := ledger.Event{
		EventID:      uuid.New().String(),
		EventType:    typ,
		ItemID:       item.ID,
		Barcode:      item.Barcode,
		Quantity:     item.Quantity,
		Transactions: txs,
		Timestamp:    uc.now(),
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Error("failed to publish ledger event",
			zap.String("event_type", string(typ)),
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}
