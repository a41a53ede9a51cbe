// Package placement models the two views of shard placement that verification
// compares: where every shard is served from right now, and where the
// placement plan says it should be served from.
//
// # Overview
//
// A Snapshot holds the shard list of every table, the current assignment
// (shard → host) and the plan (shard → ranked preferred hosts). It is filled
// from a snapshot Document, either read from disk with LoadFile or pulled from
// another process with Fetch, and then handed to verification read-only.
//
// # Plans and Ranks
//
// Every valid plan entry lists exactly NumRanks hosts in preference
// order: Primary, Secondary, Tertiary. RankOf finds the position of a host in
// an entry; the first exact (hostname, port) match wins. Entries of any other
// length are stored unchanged so verification can report them.
//
// # Locality
//
// Locality maps a shard's encoded name to the fraction of its data already
// resident on each hostname. Scores are in [0, 1]. A shard without an entry
// simply has no data; callers must skip it rather than count it as zero.
//
// # Documents
//
// The on-disk format (YAML, or JSON for .json files and HTTP):
//
//	tables:
//	  usertable:
//	    - {start_key: "", end_key: "user5", id: 1}
//	    - {start_key: "user5", end_key: "", id: 1}
//	assignments:
//	  "usertable,,1": rs1:60020
//	plan:
//	  "usertable,,1": [rs1:60020, rs2:60020, rs3:60020]
//	locality:
//	  "usertable,,1": {rs1: 0.92, rs2: 0.40}
//
// Locality is written per shard name for readability and re-keyed by encoded
// name on load. Leaving the locality section out disables locality checks.
//
// # Watching a Source
//
// A Watcher re-runs a reload function on an interval and tracks how current
// the loaded snapshot is. Three failed refreshes in a row mark the source
// stale; the last good snapshot stays in use until a refresh succeeds.
//
// # Thread Safety
//
// Snapshot and Watcher are safe for concurrent use. Plan, Assignment and Locality are plain
// maps: safe for concurrent reads, not for concurrent writes.
package placement
