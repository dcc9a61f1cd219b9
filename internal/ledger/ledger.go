// Package ledger keeps an item's quantity consistent with its transaction log.
//
// The functions here are bookkeeping primitives. They never reject a posting
// that would drive stock negative; business guards such as insufficient stock
// belong to the callers in ledger/usecase.
package ledger

import (
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Validate rejects transactions the ledger cannot apply.
func Validate(tx model.Transaction) error {
	if tx.Quantity <= 0 {
		return apperr.Validation(apperr.CodeInvalidQuantity, map[string]interface{}{"Quantity": tx.Quantity})
	}
	if !tx.Type.Valid() {
		return apperr.Validation(apperr.CodeInvalidType, map[string]interface{}{"Type": string(tx.Type)})
	}
	if !validChannel(tx.Channel) {
		return apperr.Validation(apperr.CodeInvalidChannel, map[string]interface{}{"Channel": string(tx.Channel)})
	}
	return nil
}

func validChannel(c model.Channel) bool {
	if c == model.ChannelNone {
		return true
	}
	for _, known := range model.Channels {
		if c == known {
			return true
		}
	}
	return false
}

// Delta is the effect of tx on quantity.
func Delta(tx model.Transaction) int {
	if tx.Type == model.TransactionOut {
		return -tx.Quantity
	}
	return tx.Quantity
}

// Reverse undoes Delta.
func Reverse(tx model.Transaction) int {
	return -Delta(tx)
}

// Post records tx on item and moves quantity by Delta(tx).
func Post(item *model.Item, tx model.Transaction, now time.Time) error {
	if err := Validate(tx); err != nil {
		return err
	}
	tx.ItemID = item.ID
	item.Transactions = Insert(item.Transactions, tx)
	item.Quantity += Delta(tx)
	item.UpdatedAt = now
	return nil
}

// Insert places tx into a newest-first list. Among equal dates the inserted
// transaction goes first.
func Insert(list []model.Transaction, tx model.Transaction) []model.Transaction {
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].Date.After(tx.Date)
	})
	list = append(list, model.Transaction{})
	copy(list[i+1:], list[i:])
	list[i] = tx
	return list
}

// SortTransactions restores newest-first order, keeping the relative order of
// equal dates.
func SortTransactions(list []model.Transaction) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date)
	})
}

// Removal describes what was taken out of one item.
type Removal struct {
	ItemID  string
	Removed []model.Transaction
	Delta   int
}

// Remove deletes the transactions of item whose id is in ids and applies the
// summed reversing delta once. Unknown ids are ignored.
func Remove(item *model.Item, ids map[string]struct{}, now time.Time) Removal {
	res := Removal{ItemID: item.ID}
	if len(ids) == 0 {
		return res
	}
	kept := item.Transactions[:0:0]
	for _, tx := range item.Transactions {
		if _, ok := ids[tx.ID]; ok {
			res.Removed = append(res.Removed, tx)
			res.Delta += Reverse(tx)
			continue
		}
		kept = append(kept, tx)
	}
	if len(res.Removed) == 0 {
		return res
	}
	item.Transactions = kept
	item.Quantity += res.Delta
	item.UpdatedAt = now
	return res
}

// RemoveTransactions partitions ids across items and removes them item by
// item. Items without a match are left untouched and omitted from the result.
func RemoveTransactions(items []*model.Item, ids []string, now time.Time) []Removal {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []Removal
	for _, item := range items {
		if r := Remove(item, set, now); len(r.Removed) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Recompute derives quantity from the full transaction list.
func Recompute(item model.Item) int {
	q := 0
	for _, tx := range item.Transactions {
		q += Delta(tx)
	}
	return q
}

// Reconciled reports whether the cached quantity matches the log.
func Reconciled(item model.Item) bool {
	return item.Quantity == Recompute(item)
}

// QuantityAsOf walks back from the current quantity, undoing every
// transaction dated strictly after cutoff.
func QuantityAsOf(item model.Item, cutoff time.Time) int {
	q := item.Quantity
	for _, tx := range item.Transactions {
		if tx.Date.After(cutoff) {
			q += Reverse(tx)
		}
	}
	return q
}
