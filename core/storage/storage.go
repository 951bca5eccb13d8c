// Package storage is the LevelDB key-value layer, with values optionally
// sealed at rest.
package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lvstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrNotFound = errors.New("key not found")

// Backend abstracts the persistent key-value store.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

type Storage struct {
	db     *leveldb.DB
	cipher *Cipher
}

// NewStorage opens (or creates) a LevelDB database at path. c may be nil.
func NewStorage(path string, c *Cipher) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, cipher: c}, nil
}

// NewMemStorage is an in-memory database, used by tests and LEDGER_PATH=":memory:".
func NewMemStorage(c *Cipher) (*Storage, error) {
	db, err := leveldb.Open(lvstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, cipher: c}, nil
}

// Get retrieves and decrypts the value stored at key.
func (s *Storage) Get(key string) ([]byte, error) {
	enc, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.cipher.Decrypt(enc)
}

// Put encrypts and stores value at key.
func (s *Storage) Put(key string, value []byte) error {
	enc, err := s.cipher.Encrypt(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), enc, nil)
}

// PutBatch writes all entries atomically.
func (s *Storage) PutBatch(entries map[string][]byte) error {
	batch := new(leveldb.Batch)
	for k, v := range entries {
		enc, err := s.cipher.Encrypt(v)
		if err != nil {
			return err
		}
		batch.Put([]byte(k), enc)
	}
	return s.db.Write(batch, nil)
}

func (s *Storage) Has(key string) (bool, error) {
	return s.db.Has([]byte(key), nil)
}

func (s *Storage) Delete(key string) error {
	return s.db.Delete([]byte(key), nil)
}

// Iterate calls fn for every key under prefix in key order, stopping early
// when fn returns false. Entries that fail to decrypt are skipped.
func (s *Storage) Iterate(prefix string, fn func(key string, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		dec, err := s.cipher.Decrypt(iter.Value())
		if err != nil {
			continue
		}
		if !fn(string(iter.Key()), dec) {
			break
		}
	}
	return iter.Error()
}

// Count returns the number of keys under prefix.
func (s *Storage) Count(prefix string) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (s *Storage) Close() error {
	return s.db.Close()
}
