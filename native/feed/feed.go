// Package feed stores tagged price readings. Values are rays and every
// reading carries the timestamp after which it must be ignored.
package feed

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/storage"
)

var ErrNoReading = errors.New("feed: no reading for tag")

const readingPrefix = "feed/reading"

// Reading is a single price observation.
type Reading struct {
	Value      *uint256.Int
	ValidUntil uint64
}

// Fresh reports whether the reading may still be used at now.
func (r Reading) Fresh(now uint64) bool {
	return r.Value != nil && now <= r.ValidUntil
}

// Source is the read side consumed by the ledger.
type Source interface {
	Read(tag string) (Reading, error)
}

// Store is a Source backed by the bank database; Push is the publishing side.
type Store struct {
	kv nativecommon.KV
}

func NewStore(db storage.Database) *Store {
	return &Store{kv: nativecommon.NewKV(db)}
}

func key(tag string) []byte {
	return nativecommon.Key(readingPrefix, []byte(strings.TrimSpace(tag)))
}

// Push records value for tag until validUntil.
func (s *Store) Push(tag string, value *uint256.Int, validUntil uint64) error {
	rec := Reading{Value: new(uint256.Int).Set(value), ValidUntil: validUntil}
	return s.kv.Save(key(tag), &rec)
}

func (s *Store) Read(tag string) (Reading, error) {
	rec := Reading{}
	ok, err := s.kv.Load(key(tag), &rec)
	if err != nil {
		return Reading{}, err
	}
	if !ok {
		return Reading{}, ErrNoReading
	}
	return rec, nil
}
