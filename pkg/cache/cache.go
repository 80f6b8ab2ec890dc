// Package cache persists tokenised record text in a badger key-value store so
// repeated trials with the same tokenizer skip tokenisation.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key identifies the tokens of one table row. Tokenizer is a
// tokenize.Fingerprint and DataDir the cleaned dataset directory.
type Key struct {
	Tokenizer string
	DataDir   string
	Table     string
	Row       int
}

func (k Key) bytes() []byte {
	return []byte(strings.Join([]string{"tok", k.Tokenizer, k.DataDir, k.Table, strconv.Itoa(k.Row)}, "\x00"))
}

// TokenCache is safe for concurrent use.
type TokenCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the cache stored in dir. An empty dir opens an in-memory cache.
func Open(dir string, logger *slog.Logger) (*TokenCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache: %w", err)
	}
	logger.Debug("Opened token cache", "dir", dir)
	return &TokenCache{db: db, logger: logger}, nil
}

// Close releases the store.
func (c *TokenCache) Close() error {
	return c.db.Close()
}

// Get returns the cached tokens for key.
func (c *TokenCache) Get(key Key) ([]string, bool, error) {
	var tokens []string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.bytes())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tokens)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read token cache: %w", err)
	}
	return tokens, true, nil
}

// Put stores tokens under key.
func (c *TokenCache) Put(key Key, tokens []string) error {
	val, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.bytes(), val)
	})
}

// PutAll stores many entries in one write batch.
func (c *TokenCache) PutAll(keys []Key, tokens [][]string) error {
	if len(keys) != len(tokens) {
		return fmt.Errorf("token cache: %d keys for %d values", len(keys), len(tokens))
	}
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for i, key := range keys {
		val, err := json.Marshal(tokens[i])
		if err != nil {
			return err
		}
		if err := wb.Set(key.bytes(), val); err != nil {
			return fmt.Errorf("failed to write token cache: %w", err)
		}
	}
	return wb.Flush()
}
