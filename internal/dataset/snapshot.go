package dataset

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"ecommerce-dashboard/internal/models"
)

const snapshotVersion = "v1"

// SnapshotStore persists enriched datasets keyed by source fingerprint so a
// restart over identical source bytes skips parsing.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

func (s *SnapshotStore) filename(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.gob", hex.EncodeToString(sum[:12]), snapshotVersion))
}

// Load returns the snapshot for fingerprint. Any error is a cache miss.
func (s *SnapshotStore) Load(fingerprint string) (*models.Dataset, error) {
	file, err := os.Open(s.filename(fingerprint))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ds models.Dataset
	if err := gob.NewDecoder(file).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if ds.Fingerprint != fingerprint {
		return nil, fmt.Errorf("snapshot fingerprint mismatch")
	}
	return &ds, nil
}

func (s *SnapshotStore) Save(ds *models.Dataset) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "snapshot-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(ds); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.filename(ds.Fingerprint))
}
