package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/metrics"
)

type PGRepository struct {
	DB      *sqlx.DB
	metrics *metrics.Metrics
}

func NewPGRepository(db *sqlx.DB, m *metrics.Metrics) *PGRepository {
	return &PGRepository{DB: db, metrics: m}
}

func (r *PGRepository) ApplyPostings(ctx context.Context, postings []ledger.Posting, now time.Time) error {
	if len(postings) == 0 {
		return nil
	}
	defer r.metrics.TrackDBOperation("apply_postings")(time.Now())

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
        INSERT INTO transactions (id, item_id, date, type, quantity, channel, created_at)
        VALUES (:id, :item_id, :date, :type, :quantity, NULLIF(:channel, ''), :created_at)
    `
	for _, p := range postings {
		if _, err := tx.NamedExecContext(ctx, insert, p.Transaction); err != nil {
			return fmt.Errorf("failed to insert stock transaction: %w", err)
		}

		// Read-modify-write happens inside the row lock taken by UPDATE.
		var quantity int
		err := tx.GetContext(ctx, &quantity,
			`UPDATE items SET quantity = quantity + $1, updated_at = $2 WHERE id = $3 RETURNING quantity`,
			p.Delta, now, p.Transaction.ItemID)
		if err != nil {
			return fmt.Errorf("failed to update quantity for item %s: %w", p.Transaction.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) FindOwners(ctx context.Context, txIDs []string) (map[string][]string, error) {
	owners := make(map[string][]string)
	if len(txIDs) == 0 {
		return owners, nil
	}
	defer r.metrics.TrackDBOperation("find_transaction_owners")(time.Now())

	query, args, err := sqlx.In(`SELECT id, item_id FROM transactions WHERE id IN (?)`, txIDs)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	var rows []struct {
		ID     string `db:"id"`
		ItemID string `db:"item_id"`
	}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find transaction owners: %w", err)
	}
	for _, row := range rows {
		owners[row.ItemID] = append(owners[row.ItemID], row.ID)
	}
	return owners, nil
}

func (r *PGRepository) RemoveTransactions(ctx context.Context, itemID string, txIDs []string, now time.Time) ([]model.Transaction, error) {
	if len(txIDs) == 0 {
		return nil, nil
	}
	defer r.metrics.TrackDBOperation("remove_transactions")(time.Now())

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`
        DELETE FROM transactions WHERE item_id = ? AND id IN (?)
        RETURNING id, item_id, COALESCE(date, created_at) AS date, type, quantity,
                  COALESCE(channel, '') AS channel, created_at
    `, itemID, txIDs)
	if err != nil {
		return nil, err
	}
	query = tx.Rebind(query)

	var removed []model.Transaction
	if err := tx.SelectContext(ctx, &removed, query, args...); err != nil {
		return nil, fmt.Errorf("failed to delete stock transactions: %w", err)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	delta := 0
	for _, t := range removed {
		delta += ledger.Reverse(t)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET quantity = quantity + $1, updated_at = $2 WHERE id = $3`,
		delta, now, itemID); err != nil {
		return nil, fmt.Errorf("failed to reverse quantity for item %s: %w", itemID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}
