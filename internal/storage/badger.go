package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
)

// BadgerRegistry implements Registry on top of an in-memory BadgerDB.
// Nothing is written to disk; a restart starts from an empty registry.
type BadgerRegistry struct {
	db  *badger.DB
	seq atomic.Uint64
	log logrus.FieldLogger
}

// linkRecord is the value stored for every tab/URL pair.
type linkRecord struct {
	URL        string    `json:"url"`
	Seq        uint64    `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewBadgerRegistry opens an in-memory BadgerDB instance.
func NewBadgerRegistry(logger logrus.FieldLogger) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}
	logger.Info("In-memory BadgerDB opened")

	return &BadgerRegistry{
		db:  db,
		log: logger.WithField("component", "registry"),
	}, nil
}

// Close closes the BadgerDB instance.
func (r *BadgerRegistry) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// linkKey format: tab:{tabID}:url:{url}
func linkKey(tabID domain.TabID, url string) []byte {
	return []byte(fmt.Sprintf("tab:%d:url:%s", tabID, url))
}

// tabPrefix format: tab:{tabID}:url:
func tabPrefix(tabID domain.TabID) []byte {
	return []byte(fmt.Sprintf("tab:%d:url:", tabID))
}

func (r *BadgerRegistry) Record(ctx context.Context, tabID domain.TabID, url string) error {
	if !tabID.Valid() || url == "" {
		return nil
	}
	log := r.log.WithFields(logrus.Fields{
		"tab_id": tabID,
		"url":    url,
	})

	key := linkKey(tabID, url)
	added := false
	err := r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		rec := linkRecord{URL: url, Seq: r.seq.Add(1), RecordedAt: time.Now()}
		val, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal link: %w", err)
		}
		added = true
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if errors.Is(err, badger.ErrConflict) {
		// The only key read is this one, so a conflict means a concurrent
		// Record already stored the same URL.
		return nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to record link in BadgerDB")
		return fmt.Errorf("failed to record link for tab %d: %w", tabID, err)
	}

	if added {
		log.Debug("Recorded media link")
	}
	return nil
}

func (r *BadgerRegistry) Get(ctx context.Context, tabID domain.TabID) ([]string, error) {
	var records []linkRecord

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := tabPrefix(tabID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec linkRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to unmarshal link data for key %s: %w", string(item.Key()), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("tab_id", tabID).Error("Failed to read links from BadgerDB")
		return nil, fmt.Errorf("failed to get links for tab %d: %w", tabID, err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	links := make([]string, 0, len(records))
	for _, rec := range records {
		links = append(links, rec.URL)
	}
	return links, nil
}

func (r *BadgerRegistry) Clear(ctx context.Context, tabID domain.TabID) (bool, error) {
	found := false

	// A Record racing on the same tab can conflict with the prefix scan.
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.clearOnce(tabID, &found)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		r.log.WithError(err).WithField("tab_id", tabID).Error("Failed to clear links in BadgerDB")
		return false, fmt.Errorf("failed to clear links for tab %d: %w", tabID, err)
	}
	return found, nil
}

const maxConflictRetries = 3

func (r *BadgerRegistry) clearOnce(tabID domain.TabID, found *bool) error {
	return r.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		prefix := tabPrefix(tabID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		*found = len(keys) > 0
		return nil
	})
}

func (r *BadgerRegistry) Evict(ctx context.Context, tabID domain.TabID) error {
	found, err := r.Clear(ctx, tabID)
	if err != nil {
		return fmt.Errorf("failed to evict tab %d: %w", tabID, err)
	}
	if found {
		r.log.WithField("tab_id", tabID).Info("Cleaned up data for closed tab")
	}
	return nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
