package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

const snapshotVersion = 1

type snapshot struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	Items   []model.Item `json:"items"`
}

// LocalReplica persists the catalog to a JSON file on local disk.
type LocalReplica struct {
	path string
}

func NewLocalReplica(path string) *LocalReplica {
	return &LocalReplica{path: path}
}

func (r *LocalReplica) Path() string { return r.path }

// Load returns the saved items. A missing file is an empty replica.
func (r *LocalReplica) Load() ([]model.Item, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", r.path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	// Item ids are not repeated on each transaction in the file.
	for i := range snap.Items {
		for j := range snap.Items[i].Transactions {
			snap.Items[i].Transactions[j].ItemID = snap.Items[i].ID
		}
	}
	return snap.Items, nil
}

// Save writes items to a temporary file in the same directory and renames it
// over the snapshot, so readers never observe a partial file.
func (r *LocalReplica) Save(items []model.Item, now time.Time) error {
	if items == nil {
		items = []model.Item{}
	}
	data, err := json.Marshal(snapshot{Version: snapshotVersion, SavedAt: now, Items: items})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
