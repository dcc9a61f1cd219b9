package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Store is the in-memory replica of the catalog. Readers always receive
// copies; writers go through Mutate so the ledger can modify an item in place
// under the write lock.
type Store struct {
	mu    sync.RWMutex
	items map[string]*model.Item
	order []string // insertion order, for stable iteration
}

func NewStore() *Store {
	return &Store{items: make(map[string]*model.Item)}
}

// SetItems replaces the whole replica.
func (s *Store) SetItems(items []model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*model.Item, len(items))
	s.order = s.order[:0]
	for _, it := range items {
		c := it.Clone()
		if _, dup := s.items[c.ID]; !dup {
			s.order = append(s.order, c.ID)
		}
		s.items[c.ID] = &c
	}
}

// Items returns a copy of every item in insertion order.
func (s *Store) Items() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) Get(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// GetByBarcode matches the barcode exactly. No trimming or case folding is
// applied: scanners send the code verbatim.
func (s *Store) GetByBarcode(barcode string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if it := s.items[id]; it.Barcode == barcode {
			return it.Clone(), true
		}
	}
	return model.Item{}, false
}

// Search returns items whose name, barcode, brand or stock code contains
// query, ignoring case. An empty query returns the whole catalog.
func (s *Store) Search(query string) []model.Item {
	if query == "" {
		return s.Items()
	}
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Item{}
	for _, id := range s.order {
		it := s.items[id]
		if matches(it, q) {
			out = append(out, it.Clone())
		}
	}
	return out
}

func matches(it *model.Item, q string) bool {
	for _, f := range []string{it.Name, it.Barcode, it.Brand, it.StockCode} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Add inserts item or replaces an existing one with the same id.
func (s *Store) Add(item model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := item.Clone()
	if _, ok := s.items[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = &c
}

// Replace swaps an existing item. It reports false when id is unknown.
func (s *Store) Replace(item model.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return false
	}
	c := item.Clone()
	s.items[c.ID] = &c
	return true
}

// Mutate runs fn on the live item under the write lock and returns a copy of
// the result. fn must not retain the pointer.
func (s *Store) Mutate(id string, fn func(*model.Item) error) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return model.Item{}, ErrNotInReplica
	}
	if err := fn(it); err != nil {
		return model.Item{}, err
	}
	return it.Clone(), nil
}

func (s *Store) Remove(id string) bool {
	return s.RemoveMany([]string{id}) == 1
}

// RemoveMany drops the given ids and returns how many were present.
func (s *Store) RemoveMany(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.items[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return n
}

// OwnersOf maps item id to the subset of txIDs found on that item.
func (s *Store) OwnersOf(txIDs []string) map[string][]string {
	want := make(map[string]struct{}, len(txIDs))
	for _, id := range txIDs {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string)
	for _, id := range s.order {
		for _, tx := range s.items[id].Transactions {
			if _, ok := want[tx.ID]; ok {
				out[id] = append(out[id], tx.ID)
			}
		}
	}
	return out
}

// SortByUpdated orders items most recently updated first.
func SortByUpdated(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}
