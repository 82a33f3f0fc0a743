package hooks

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/hashicorp/raft"
	"github.com/vmihailenco/msgpack/v5"
)

var logPrefix = []byte("log")

// BadgerStore is a raft.LogStore kept in a badger directory.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions
	opts.Dir, opts.ValueDir = dir, dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func logKey(index uint64) []byte {
	key := make([]byte, 0, len(logPrefix)+8)
	key = append(key, logPrefix...)
	return binary.BigEndian.AppendUint64(key, index)
}

// FirstIndex returns the lowest stored index, or 0 if empty.
func (s *BadgerStore) FirstIndex() (uint64, error) {
	return s.edgeIndex(false)
}

// LastIndex returns the highest stored index, or 0 if empty.
func (s *BadgerStore) LastIndex() (uint64, error) {
	return s.edgeIndex(true)
}

func (s *BadgerStore) edgeIndex(last bool) (uint64, error) {
	var index uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = last
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := logPrefix
		if last {
			seek = logKey(^uint64(0))
		}
		it.Seek(seek)
		if it.ValidForPrefix(logPrefix) {
			index = binary.BigEndian.Uint64(it.Item().Key()[len(logPrefix):])
		}
		return nil
	})
	return index, err
}

// GetLog reads the entry at index into log.
func (s *BadgerStore) GetLog(index uint64, log *raft.Log) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(logKey(index))
		if err == badger.ErrKeyNotFound {
			return raft.ErrLogNotFound
		}
		if err != nil {
			return err
		}
		val, err := item.Value()
		if err != nil {
			return err
		}
		return msgpack.Unmarshal(val, log)
	})
}

// StoreLog stores a single entry.
func (s *BadgerStore) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs stores entries, committing early when a transaction grows too big.
func (s *BadgerStore) StoreLogs(logs []*raft.Log) error {
	txn := s.db.NewTransaction(true)

	for _, l := range logs {
		val, err := msgpack.Marshal(l)
		if err != nil {
			txn.Discard()
			return err
		}
		key := logKey(l.Index)
		if err := txn.Set(key, val); err != nil {
			if err == badger.ErrTxnTooBig {
				if err = txn.Commit(nil); err != nil {
					txn.Discard()
					return err
				}
				txn = s.db.NewTransaction(true)
				if err = txn.Set(key, val); err != nil {
					txn.Discard()
					return err
				}
			} else {
				txn.Discard()
				return err
			}
		}
	}

	return txn.Commit(nil)
}

// DeleteRange removes entries min through max, inclusive.
func (s *BadgerStore) DeleteRange(min, max uint64) error {
	txn := s.db.NewTransaction(true)

	for i := min; i <= max; i++ {
		key := logKey(i)
		if err := txn.Delete(key); err != nil {
			if err == badger.ErrTxnTooBig {
				if err = txn.Commit(nil); err != nil {
					txn.Discard()
					return err
				}
				txn = s.db.NewTransaction(true)
				if err = txn.Delete(key); err != nil {
					txn.Discard()
					return err
				}
			} else {
				txn.Discard()
				return err
			}
		}
		if i == max {
			break
		}
	}

	return txn.Commit(nil)
}

var _ raft.LogStore = (*BadgerStore)(nil)
