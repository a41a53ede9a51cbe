// Package shard describes the unit of data distribution: a contiguous key range
// of a single table.
//
// A shard is identified two ways:
//
//   - Name() is "table,startKey,id" and is what operators read in reports and
//     what placement plans and assignments are keyed by.
//   - EncodedName() is a 16 hex digit xxhash of the name. It is short, has no
//     separators, and is the key of locality data.
//
// Shard values are descriptors only. They carry no storage and no state and
// are never mutated after creation, so they can be shared freely across
// goroutines.
package shard
