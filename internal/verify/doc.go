// Package verify measures how well a table's live shard placement follows its
// placement plan, and how evenly the shards are spread over hosts.
//
// # Overview
//
// A placement plan names, for every shard, an ordered list of preferred hosts
// (primary, secondary, tertiary). Between rebalancing runs shards move: hosts
// fail, operators move shards by hand, new shards appear before the plan is
// refreshed. Verification takes a snapshot of where shards are served from
// right now and answers two independent questions:
//
//   - Compliance: is each shard on one of its preferred hosts, and at which
//     rank? How much of its data is local there?
//   - Balance: how many shards does each host serve, and which hosts are the
//     most and the least loaded?
//
// Verification never changes placement and never talks to the cluster. It
// reads already materialized lookups and returns a Report.
//
// # Classification
//
// Every shard in the analyzed list ends up in exactly one bucket:
//
//	┌───────────────────┐
//	│ current host?     │── no ──▶ Unassigned
//	└─────────┬─────────┘
//	          │ yes (host load += 1)
//	┌─────────▼─────────┐
//	│ plan has K hosts? │── no ──▶ WithoutValidPlan
//	└─────────┬─────────┘
//	          │ yes
//	┌─────────▼─────────┐
//	│ host in plan?     │── no ──▶ NonFavored
//	└─────────┬─────────┘
//	          │ yes
//	          ▼
//	  compliant at rank r (+ locality sums)
//
// A shard that cannot be classified at all, a nil entry, a lookup that
// panics, or a locality score outside [0, 1], becomes a Fault. Its
// contributions are dropped, the failure is logged with the shard name, and
// the pass continues. Faults are counted in the total, so
//
//	sum(RankCounts) + NonFavored + Unassigned + WithoutValidPlan + Faults == TotalShards
//
// always holds.
//
// # Locality
//
// Locality is optional. When supplied, for every compliant shard that has
// locality data the score of each ranked host is added to that rank's sum and
// the score of the actual host to the actual sum. Hosts without a score are
// skipped rather than counted as zero, and shards without data do not move any
// sum. Averages are reported in percent of the total shard count.
//
// # Balance
//
// Host load is counted for every assigned shard, compliant or not. After the
// classification pass a single pass over the per-host counters yields the
// number of hosting servers, the floor average, and the maximum and minimum
// with every tied host kept:
//
//	h1: 3  h2: 1  h3: 1   →   max 3 {h1}   min 1 {h2, h3}   avg 5/3 = 1
//
// # Concurrency
//
// Analyze is synchronous and holds no state; separate tables can be analyzed
// in parallel, and AnalyzeTables does exactly that with a bounded errgroup.
// The inputs must stay unchanged for the duration of a call. Reports are
// immutable and safe to share.
//
// # Usage Example
//
//	snap, locality, err := placement.LoadFile("snapshot.yaml")
//	if err != nil {
//	    return err
//	}
//	shards, err := snap.ShardsForTable("usertable")
//	if err != nil {
//	    return err
//	}
//	report, err := verify.NewAnalyzer(logger).Analyze(verify.Input{
//	    Table:    "usertable",
//	    Shards:   shards,
//	    Current:  snap,
//	    Plan:     snap,
//	    Locality: locality,
//	})
//	fmt.Println(report.TotalCompliant(), "of", report.TotalShards())
package verify
