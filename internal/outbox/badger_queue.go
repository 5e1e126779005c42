package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "outbox/"

// BadgerQueue は Badger KV の Queue。値は Event の JSON
type BadgerQueue struct {
	db *badger.DB
}

// OpenBadger: path が空ならメモリ上（テスト用）
func OpenBadger(path string) (*BadgerQueue, error) {
	db, err := badger.Open(badgerOptions(path))
	if err != nil {
		return nil, fmt.Errorf("open outbox badger: %w", err)
	}
	return &BadgerQueue{db: db}, nil
}

// badgerOptions: ディスク上では書き込みごとに fsync する。空パスはメモリ上
func badgerOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		return opts.WithInMemory(true)
	}
	return opts.WithSyncWrites(true)
}

func badgerKey(key string) []byte { return []byte(badgerPrefix + key) }

func (q *BadgerQueue) Put(_ context.Context, e Event) error {
	return q.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(e.Key))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		buf, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(badgerKey(e.Key), buf)
	})
}

func (q *BadgerQueue) Get(_ context.Context, key string) (Event, error) {
	var e Event
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = readEvent(txn, key)
		return err
	})
	return e, err
}

func readEvent(txn *badger.Txn, key string) (Event, error) {
	item, err := txn.Get(badgerKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, err
	}
	var e Event
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	return e, err
}

func (q *BadgerQueue) List(_ context.Context, statuses ...Status) ([]Event, error) {
	var out []Event
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e Event
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			if wantStatus(e.Status, statuses) {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEvents(out)
	return out, nil
}

// Update は楽観ロックの衝突時だけやり直す
func (q *BadgerQueue) Update(ctx context.Context, key string, fn func(*Event) error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = q.db.Update(func(txn *badger.Txn) error {
			e, err := readEvent(txn, key)
			if err != nil {
				return err
			}
			if err := fn(&e); err != nil {
				return err
			}
			e.Key = key
			buf, err := json.Marshal(e)
			if err != nil {
				return err
			}
			return txn.Set(badgerKey(key), buf)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (q *BadgerQueue) Delete(_ context.Context, key string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(badgerKey(key))
	})
}

func (q *BadgerQueue) Close() error { return q.db.Close() }

func sortEvents(es []Event) {
	sort.SliceStable(es, func(i, j int) bool { return lessEvent(es[i], es[j]) })
}
