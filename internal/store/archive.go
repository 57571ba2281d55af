package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"redvote/internal/model"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const gcInterval = 5 * time.Minute

// Archive keeps link snapshots in Badger: JSON metadata under snapshot:<id>
// and gzip-compressed content under content:<id>.
type Archive struct {
	db     *badger.DB
	logger *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// OpenArchive opens the Badger directory at path.
// Pass path="" for client mode, where snapshots cannot be written.
func OpenArchive(path string, logger *zap.Logger) (*Archive, error) {
	if path == "" {
		return &Archive{logger: logger}, nil
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Silence default logger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	a := newArchive(db, logger)
	a.wg.Add(1)
	go a.gcLoop()
	return a, nil
}

func newArchive(db *badger.DB, logger *zap.Logger) *Archive {
	return &Archive{db: db, logger: logger, stop: make(chan struct{})}
}

func (a *Archive) gcLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := a.db.RunValueLogGC(0.7); err != nil && err != badger.ErrNoRewrite {
				a.logger.Warn("Badger value log GC failed", zap.Error(err))
			}
		}
	}
}

// Close stops the GC loop and closes the database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	if a.stop != nil {
		close(a.stop)
		a.wg.Wait()
	}
	return a.db.Close()
}

func snapshotKey(id uint64) []byte { return []byte(fmt.Sprintf("snapshot:%d", id)) }
func contentKey(id uint64) []byte  { return []byte(fmt.Sprintf("content:%d", id)) }

// SaveSnapshot writes metadata and content in one transaction.
func (a *Archive) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if a.db == nil {
		return ErrArchiveDisabled
	}

	meta := *snap
	meta.Content = ""
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := io.WriteString(zw, snap.Content); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	return a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(snap.ArticleID), metaJSON); err != nil {
			return err
		}
		return txn.Set(contentKey(snap.ArticleID), compressed.Bytes())
	})
}

// Snapshot reads a stored snapshot back, content included.
func (a *Archive) Snapshot(ctx context.Context, id uint64) (*model.Snapshot, error) {
	if a.db == nil {
		return nil, ErrArchiveDisabled
	}

	var metaJSON, compressed []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(id))
		if err != nil {
			return err
		}
		if metaJSON, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(contentKey(id))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: snapshot %d", ErrNotFound, id)
	} else if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal(metaJSON, &snap); err != nil {
		return nil, fmt.Errorf("snapshot %d: parse metadata: %w", id, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, err)
	}
	defer zr.Close()
	content, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: decompress: %w", id, err)
	}
	snap.Content = string(content)
	return &snap, nil
}
