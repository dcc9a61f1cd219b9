package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Posting is one transaction together with the quantity change it causes.
type Posting struct {
	Transaction model.Transaction
	Delta       int
}

type Repository interface {
	// ApplyPostings inserts every transaction and moves the owning items'
	// quantities in a single database transaction.
	ApplyPostings(ctx context.Context, postings []Posting, now time.Time) error

	// FindOwners maps item id to the subset of txIDs it owns.
	FindOwners(ctx context.Context, txIDs []string) (map[string][]string, error)

	// RemoveTransactions deletes txIDs from one item and applies the reversing
	// delta atomically.
	RemoveTransactions(ctx context.Context, itemID string, txIDs []string, now time.Time) ([]model.Transaction, error)
}

// Locker serializes ledger writes per key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func LockKey(itemID string) string {
	return "lock:ledger:item:" + itemID
}

// LockAll takes the per-item locks in id order so concurrent batches cannot
// deadlock. The returned func releases everything taken.
func LockAll(ctx context.Context, locker Locker, itemIDs []string) (func(), error) {
	sorted := append([]string(nil), itemIDs...)
	sort.Strings(sorted)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		unlock, err := locker.Lock(ctx, LockKey(id))
		if err != nil {
			release()
			return nil, apperr.Validation(apperr.CodeSystemBusy, nil)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
