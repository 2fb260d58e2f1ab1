// Package history persists health reports in a Badger store keyed by
// generation time. Retention is enforced with per-entry TTLs, so old reports
// expire without a background cleanup pass.
package history

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/storkeep/storkeep/pkg/storkeep/health"
)

// keyPrefix namespaces report keys; the RFC3339Nano suffix makes
// lexicographic order chronological.
const keyPrefix = "report:"

// Store is a Badger-backed history of health reports.
type Store struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens or creates the history store at path. Reports expire after
// retention; zero disables expiry.
func Open(path string, retention time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	return &Store{db: db, retention: retention}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one report under its generation time.
func (s *Store) Append(r *health.Report) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	key := []byte(keyPrefix + r.GeneratedAt.UTC().Format(time.RFC3339Nano))
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, buf.Bytes())
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Recent returns the newest reports, newest first. A non-positive limit
// returns everything. Entries that no longer decode are skipped.
func (s *Store) Recent(limit int) ([]*health.Report, error) {
	var reports []*health.Report

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		// Reverse iteration starts just past the last possible key.
		seek := append(append([]byte{}, prefix...), 0xFF)

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(reports) >= limit {
				break
			}

			var report health.Report
			err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&report)
			})
			if err != nil {
				continue
			}
			reports = append(reports, &report)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	return reports, nil
}

// Latest returns the most recent report, or nil when the history is empty.
func (s *Store) Latest() (*health.Report, error) {
	reports, err := s.Recent(1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return reports[0], nil
}

var _ health.ReportSink = (*Store)(nil)
