package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrKeyNotFound is returned by Get when the requested key has never been
// written. Both backends normalise their native miss signal to this sentinel
// so callers can distinguish absence from storage failures.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. It allows the ledger
// to use any backend: in-memory for tests, persistent for a real node. The
// flat Put/Get surface carries metadata such as the committed state root;
// record state itself lives in the merkle trie served by TrieDB.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	nodes  *memorydb.Database
	once   sync.Once
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data:  make(map[string][]byte),
		nodes: memorydb.New(),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// TrieDB returns the trie database holding merkle nodes. The handle is built
// lazily and reused so every trie opened over this store shares one node set.
func (db *MemDB) TrieDB() *triedb.Database {
	db.once.Do(func() {
		db.trieDB = triedb.NewDatabase(rawdb.NewDatabase(db.nodes), triedb.HashDefaults)
	})
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for a real deployment) ---

// LevelDB is a persistent key-value store using LevelDB. Flat keys and trie
// nodes share the same database file so a committed root can always be
// reopened from the store it was written to.
type LevelDB struct {
	db     *gethleveldb.Database
	once   sync.Once
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := gethleveldb.New(path, 0, 0, "marketchain/db/", false)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

// TrieDB returns the trie database holding merkle nodes, backed by the same
// LevelDB file as the flat keyspace.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	ldb.once.Do(func() {
		ldb.trieDB = triedb.NewDatabase(rawdb.NewDatabase(ldb.db), triedb.HashDefaults)
	})
	return ldb.trieDB
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
