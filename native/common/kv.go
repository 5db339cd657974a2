package common

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpbank/storage"
)

// KV reads and writes RLP encoded records under hashed keys.
type KV struct {
	db storage.Database
}

// NewKV wraps db.
func NewKV(db storage.Database) KV { return KV{db: db} }

// DB exposes the underlying database.
func (kv KV) DB() storage.Database { return kv.db }

// Key derives a storage key from a module prefix and its components. Each
// component is length-prefixed before hashing so ("ab","c") and ("a","bc")
// never collide.
func Key(prefix string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(prefix)+1+32*len(parts))
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	for _, p := range parts {
		buf = append(buf, byte(len(p)>>8), byte(len(p)))
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

// Load decodes the value at key into out. It reports false when the key is
// absent.
func (kv KV) Load(key []byte, out interface{}) (bool, error) {
	data, err := kv.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode record: %w", err)
	}
	return true, nil
}

// Save encodes value and writes it at key.
func (kv KV) Save(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return kv.db.Put(key, encoded)
}
