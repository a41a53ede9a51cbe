package shard

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Shard identifies one contiguous key range of a table.
// A shard owns the row keys in [StartKey, EndKey); an empty EndKey means the
// range is unbounded above.
type Shard struct {
	Table    string // Owning table
	StartKey string // Inclusive lower bound
	EndKey   string // Exclusive upper bound, "" for the last shard
	ID       int64  // Creation id, disambiguates shards with the same start key
}

// NewShard creates a shard descriptor
func NewShard(table, startKey, endKey string, id int64) *Shard {
	return &Shard{
		Table:    table,
		StartKey: startKey,
		EndKey:   endKey,
		ID:       id,
	}
}

// Name returns the stable, human readable shard name "table,startKey,id".
func (s *Shard) Name() string {
	return s.Table + "," + s.StartKey + "," + strconv.FormatInt(s.ID, 10)
}

// EncodedName returns a fixed-width hex digest of Name.
// Locality data is keyed by this value.
func (s *Shard) EncodedName() string {
	return EncodeName(s.Name())
}

// EncodeName hashes a shard name into its encoded form
func EncodeName(name string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(name))
}

// Contains reports whether the row key falls inside the shard's range
func (s *Shard) Contains(key string) bool {
	if key < s.StartKey {
		return false
	}
	return s.EndKey == "" || key < s.EndKey
}

// String implements fmt.Stringer
func (s *Shard) String() string {
	return s.Name()
}

// Sort orders shards by start key, then id, for consistent output
func Sort(shards []*Shard) {
	sort.SliceStable(shards, func(i, j int) bool {
		a, b := shards[i], shards[j]
		if a == nil || b == nil {
			return b != nil
		}
		if a.StartKey != b.StartKey {
			return a.StartKey < b.StartKey
		}
		return a.ID < b.ID
	})
}

// Names returns the names of the given shards in order.
// Nil entries are skipped.
func Names(shards []*Shard) []string {
	names := make([]string, 0, len(shards))
	for _, s := range shards {
		if s == nil {
			continue
		}
		names = append(names, s.Name())
	}
	return names
}
