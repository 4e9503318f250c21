// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// Key layout:
//
//	c/<session_id>/<seq>  -> ContributionRecord (JSON)
//	s/<session_id>        -> latest Snapshot (JSON)
//
// seq is a zero-padded process-wide counter seeded from the record
// timestamp, so append order survives lexicographic iteration and
// restarts.
const (
	contribPrefix  = "c/"
	snapshotPrefix = "s/"
)

// BadgerStore is the durable ledger backed by an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq atomic.Uint64
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the ledger database at path.
func NewBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("path is required for persistent ledger")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create ledger directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens a throwaway in-memory ledger for tests.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory ledger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// AppendContributions implements Store.
func (s *BadgerStore) AppendContributions(ctx context.Context, records []datatypes.ContributionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, r := range records {
			value, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal contribution record: %w", err)
			}
			// Timestamp-major, counter-minor: stable order for records
			// written within the same nanosecond.
			key := fmt.Sprintf("%s%s/%020d-%010d",
				contribPrefix, r.SessionID, r.Timestamp.UnixNano(), s.seq.Add(1))
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveSnapshot implements Store.
func (s *BadgerStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotPrefix+snap.SessionID), value)
	})
}

// Contributions implements Store.
func (s *BadgerStore) Contributions(ctx context.Context, sessionID string) ([]datatypes.ContributionRecord, error) {
	var records []datatypes.ContributionRecord
	prefix := []byte(contribPrefix + sessionID + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var r datatypes.ContributionRecord
				if err := json.Unmarshal(value, &r); err != nil {
					return fmt.Errorf("unmarshal contribution record: %w", err)
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []datatypes.ContributionRecord{}
	}
	return records, nil
}

// LatestSnapshot implements Store.
func (s *BadgerStore) LatestSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + sessionID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &snap)
		})
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// DeleteSession implements Store.
func (s *BadgerStore) DeleteSession(ctx context.Context, sessionID string) error {
	prefix := []byte(contribPrefix + sessionID + "/")

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		err := txn.Delete([]byte(snapshotPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
