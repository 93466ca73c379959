package sqlitestore

import (
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/multierr"

	"github.com/ChinmayNoob/histkv/store"
)

// Store is one named store of a System.
type Store struct {
	sys  *System
	name string
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.sys.mu.RLock()
	defer s.sys.mu.RUnlock()
	return s.get(key)
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	var v []byte
	err := s.sys.db.QueryRow("SELECT v FROM kv WHERE store = ? AND k = ?", s.name, bind(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.Wrap("get", err)
	}
	return nonNil(v), true, nil
}

func (s *Store) GetBatch(keys [][]byte) ([][]byte, error) {
	s.sys.mu.RLock()
	defer s.sys.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := s.get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *Store) Put(key, value []byte) error {
	return s.PutBatch([]store.Pair{{Key: key, Value: value}})
}

func (s *Store) PutBatch(pairs []store.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	return s.inTx(`INSERT INTO kv (store, k, v) VALUES (?, ?, ?)
		ON CONFLICT (store, k) DO UPDATE SET v = excluded.v`, len(pairs), func(i int) []any {
		return []any{s.name, bind(pairs[i].Key), bind(pairs[i].Value)}
	})
}

func (s *Store) Remove(key []byte) error {
	return s.RemoveBatch([][]byte{key})
}

func (s *Store) RemoveBatch(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return s.inTx("DELETE FROM kv WHERE store = ? AND k = ?", len(keys), func(i int) []any {
		return []any{s.name, bind(keys[i])}
	})
}

// inTx runs the statement n times in one transaction.
func (s *Store) inTx(query string, n int, args func(i int) []any) (err error) {
	s.sys.mu.Lock()
	defer s.sys.mu.Unlock()

	tx, err := s.sys.db.Begin()
	if err != nil {
		return store.Wrap("begin", err)
	}
	defer func() {
		if err != nil {
			err = store.Wrap("write", multierr.Append(err, tx.Rollback()))
		}
	}()
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err = stmt.Exec(args(i)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	return s.scan(begin, end, true, fn)
}

func (s *Store) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return s.scan(prefix, store.PrefixEnd(prefix), true, fn)
}

func (s *Store) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return store.ScanPrefixesOnce(prefixes, s.ScanPrefix, fn)
}

func (s *Store) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return s.scan(begin, end, false, fn)
}

func (s *Store) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return s.scan(prefix, store.PrefixEnd(prefix), false, fn)
}

// scan reads the whole range before calling fn, so fn may use the store.
func (s *Store) scan(begin, end []byte, withValues bool, fn store.KeyValueFunc) error {
	pairs, err := s.collect(begin, end, withValues)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		fn(p.Key, p.Value)
	}
	return nil
}

func (s *Store) collect(begin, end []byte, withValues bool) ([]store.Pair, error) {
	var q strings.Builder
	q.WriteString("SELECT k")
	if withValues {
		q.WriteString(", v")
	}
	q.WriteString(" FROM kv WHERE store = ? AND k >= ?")
	args := []any{s.name, bind(begin)}
	if end != nil {
		q.WriteString(" AND k < ?")
		args = append(args, bind(end))
	}
	q.WriteString(" ORDER BY k")

	s.sys.mu.RLock()
	defer s.sys.mu.RUnlock()
	rows, err := s.sys.db.Query(q.String(), args...)
	if err != nil {
		return nil, store.Wrap("scan", err)
	}
	defer rows.Close()

	var out []store.Pair
	for rows.Next() {
		var p store.Pair
		if withValues {
			err = rows.Scan(&p.Key, &p.Value)
			p.Value = nonNil(p.Value)
		} else {
			err = rows.Scan(&p.Key)
		}
		if err != nil {
			return nil, store.Wrap("scan", err)
		}
		p.Key = nonNil(p.Key)
		out = append(out, p)
	}
	return out, store.Wrap("scan", rows.Err())
}

// bind keeps nil slices from being stored as NULL.
func bind(b []byte) []byte {
	return nonNil(b)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
