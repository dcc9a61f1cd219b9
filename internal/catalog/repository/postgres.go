package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/metrics"
)

const itemColumns = `
    id, barcode, COALESCE(stock_code, '') AS stock_code, name,
    COALESCE(image, '') AS image, COALESCE(description, '') AS description,
    COALESCE(brand, '') AS brand, COALESCE(vat_rate, 20) AS vat_rate,
    COALESCE(buy_price, 0) AS buy_price, COALESCE(sell_price, 0) AS sell_price,
    COALESCE(quantity, 0) AS quantity, created_at, updated_at`

const transactionColumns = `
    id, item_id, COALESCE(date, created_at) AS date, type, quantity,
    COALESCE(channel, '') AS channel, created_at`

type PGRepository struct {
	DB      *sqlx.DB
	metrics *metrics.Metrics
}

func NewPGRepository(db *sqlx.DB, m *metrics.Metrics) *PGRepository {
	return &PGRepository{DB: db, metrics: m}
}

func (r *PGRepository) FindAll(ctx context.Context) ([]model.Item, error) {
	defer r.metrics.TrackDBOperation("find_all_items")(time.Now())

	var items []model.Item
	if err := r.DB.SelectContext(ctx, &items, "SELECT"+itemColumns+" FROM items ORDER BY updated_at DESC"); err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}

	var txs []model.Transaction
	query := "SELECT" + transactionColumns + " FROM transactions ORDER BY date DESC, created_at DESC"
	if err := r.DB.SelectContext(ctx, &txs, query); err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}

	attach(items, txs)
	return items, nil
}

// attach distributes txs, already sorted newest first, onto their items.
func attach(items []model.Item, txs []model.Transaction) {
	byItem := make(map[string][]model.Transaction, len(items))
	for _, tx := range txs {
		if c, ok := model.ParseChannel(string(tx.Channel)); ok {
			tx.Channel = c
		}
		byItem[tx.ItemID] = append(byItem[tx.ItemID], tx)
	}
	for i := range items {
		items[i].Transactions = byItem[items[i].ID]
		if items[i].Transactions == nil {
			items[i].Transactions = []model.Transaction{}
		}
	}
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Item, error) {
	defer r.metrics.TrackDBOperation("find_item")(time.Now())

	var item model.Item
	err := r.DB.GetContext(ctx, &item, "SELECT"+itemColumns+" FROM items WHERE id = $1 LIMIT 1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	var txs []model.Transaction
	query := "SELECT" + transactionColumns + " FROM transactions WHERE item_id = $1 ORDER BY date DESC, created_at DESC"
	if err := r.DB.SelectContext(ctx, &txs, query, id); err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}

	items := []model.Item{item}
	attach(items, txs)
	return &items[0], nil
}

func (r *PGRepository) IsBarcodeUnique(ctx context.Context, barcode, excludeID string) (bool, error) {
	var count int
	query := `SELECT count(*) FROM items WHERE barcode = $1`
	args := []interface{}{barcode}
	if excludeID != "" {
		query += ` AND id != $2`
		args = append(args, excludeID)
	}

	if err := r.DB.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return count == 0, nil
}

func (r *PGRepository) Create(ctx context.Context, item *model.Item) error {
	defer r.metrics.TrackDBOperation("create_item")(time.Now())

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO items (
            id, barcode, stock_code, name, image, description, brand,
            vat_rate, buy_price, sell_price, quantity, created_at, updated_at
        )
        VALUES (
            :id, :barcode, :stock_code, :name, :image, :description, :brand,
            :vat_rate, :buy_price, :sell_price, :quantity, :created_at, :updated_at
        )
    `
	if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	for _, t := range item.Transactions {
		t.ItemID = item.ID
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t model.Transaction) error {
	query := `
        INSERT INTO transactions (id, item_id, date, type, quantity, channel, created_at)
        VALUES (:id, :item_id, :date, :type, :quantity, NULLIF(:channel, ''), :created_at)
    `
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("failed to insert stock transaction: %w", err)
	}
	return nil
}

// Update writes descriptive and pricing fields. quantity is owned by the
// ledger and never written here.
func (r *PGRepository) Update(ctx context.Context, item *model.Item) error {
	defer r.metrics.TrackDBOperation("update_item")(time.Now())

	query := `
        UPDATE items
        SET barcode = :barcode,
            stock_code = :stock_code,
            name = :name,
            image = :image,
            description = :description,
            brand = :brand,
            vat_rate = :vat_rate,
            buy_price = :buy_price,
            sell_price = :sell_price,
            updated_at = :updated_at
        WHERE id = :id
    `
	if _, err := r.DB.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	defer r.metrics.TrackDBOperation("delete_item")(time.Now())

	if _, err := r.DB.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func (r *PGRepository) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	defer r.metrics.TrackDBOperation("bulk_delete_items")(time.Now())

	query, args, err := sqlx.In(`DELETE FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	// Rebind for Postgres ($1, $2...)
	query = r.DB.Rebind(query)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete items: %w", err)
	}
	return res.RowsAffected()
}

func (r *PGRepository) BulkUpsert(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	defer r.metrics.TrackDBOperation("bulk_upsert_items")(time.Now())

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
        INSERT INTO items (
            id, barcode, stock_code, name, image, description, brand,
            vat_rate, buy_price, sell_price, quantity, created_at, updated_at
        )
        VALUES (
            :id, :barcode, :stock_code, :name, :image, :description, :brand,
            :vat_rate, :buy_price, :sell_price, :quantity, :created_at, :updated_at
        )
        ON CONFLICT (barcode) DO UPDATE SET
            name = EXCLUDED.name,
            brand = EXCLUDED.brand,
            stock_code = EXCLUDED.stock_code,
            buy_price = EXCLUDED.buy_price,
            sell_price = EXCLUDED.sell_price,
            quantity = EXCLUDED.quantity,
            updated_at = EXCLUDED.updated_at
        RETURNING id, created_at
    `
	// The owning row is resolved by barcode because on conflict the stored id wins.
	insertTx := `
        INSERT INTO transactions (id, item_id, date, type, quantity, channel, created_at)
        SELECT $1::text, i.id, $2::timestamptz, $3::text, $4::integer, NULLIF($5::text, ''), $6::timestamptz
        FROM items i WHERE i.barcode = $7
        ON CONFLICT (id) DO NOTHING
    `
	stmt, err := tx.PrepareNamedContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("failed to prepare item upsert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		item := &items[i]
		if err := stmt.QueryRowxContext(ctx, item).Scan(&item.ID, &item.CreatedAt); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", item.Barcode, err)
		}
		for _, t := range item.Transactions {
			_, err := tx.ExecContext(ctx, insertTx,
				t.ID, t.Date, string(t.Type), t.Quantity, string(t.Channel), t.CreatedAt, item.Barcode)
			if err != nil {
				return fmt.Errorf("failed to insert stock transaction %s: %w", t.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
