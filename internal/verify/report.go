package verify

import (
	"golang.org/x/exp/slices"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/shard"
)

// Fault records a shard that could not be verified.
// The shard is nil when the shard list itself held a nil entry.
type Fault struct {
	Shard *shard.Shard
	Err   error
}

// ShardName returns the faulted shard's name, or "unknown" for a nil shard.
func (f Fault) ShardName() string {
	if f.Shard == nil {
		return "unknown"
	}
	return f.Shard.Name()
}

func (f Fault) Error() string {
	return "shard " + f.ShardName() + ": " + f.Err.Error()
}

func (f Fault) Unwrap() error {
	return f.Err
}

// Report is the result of verifying one table's placement.
//
// A Report only exists once analysis has completed and is never modified
// afterwards; every accessor returns a copy, so a Report can be shared
// between goroutines without locking.
//
// Every shard of the analyzed list lands in exactly one bucket:
//
//	unassigned + without valid plan + non-favored + compliant + faulted == total
type Report struct {
	table            string
	localityEnforced bool

	totalShards    int
	rankCounts     [placement.NumRanks]int
	totalCompliant int

	unassigned  []*shard.Shard
	withoutPlan []*shard.Shard
	nonFavored  []*shard.Shard
	faults      []Fault

	rankLocality   [placement.NumRanks]float64
	actualLocality float64

	hostLoad       map[cluster.Host]int
	hostingServers int
	avgPerHost     int
	maxPerHost     int
	minPerHost     int
	mostLoaded     []cluster.Host
	leastLoaded    []cluster.Host
}

// Table returns the name of the analyzed table.
func (r *Report) Table() string { return r.table }

// LocalityEnforced reports whether locality data was supplied and applied to
// at least one shard running on a preferred host.
func (r *Report) LocalityEnforced() bool { return r.localityEnforced }

// TotalShards returns the size of the analyzed shard list.
func (r *Report) TotalShards() int { return r.totalShards }

// RankCount returns the number of shards currently served from their rank-r host.
func (r *Report) RankCount(rank placement.Rank) int {
	if !rank.Valid() {
		return 0
	}
	return r.rankCounts[rank]
}

// RankCounts returns the per-rank compliant counts indexed by rank.
func (r *Report) RankCounts() [placement.NumRanks]int { return r.rankCounts }

// TotalCompliant returns the number of shards served from any preferred host.
func (r *Report) TotalCompliant() int { return r.totalCompliant }

// Unassigned returns the shards with no current host.
func (r *Report) Unassigned() []*shard.Shard { return slices.Clone(r.unassigned) }

// WithoutValidPlan returns assigned shards whose plan entry is missing or
// does not list exactly placement.NumRanks hosts.
func (r *Report) WithoutValidPlan() []*shard.Shard { return slices.Clone(r.withoutPlan) }

// NonFavored returns shards served from a host outside their plan.
func (r *Report) NonFavored() []*shard.Shard { return slices.Clone(r.nonFavored) }

// Faults returns the shards that could not be verified, with the cause.
func (r *Report) Faults() []Fault { return slices.Clone(r.faults) }

// RankLocalitySum returns the summed locality score of every compliant
// shard's rank-r preferred host.
func (r *Report) RankLocalitySum(rank placement.Rank) float64 {
	if !rank.Valid() {
		return 0
	}
	return r.rankLocality[rank]
}

// ActualLocalitySum returns the summed locality score of the hosts compliant
// shards are actually served from.
func (r *Report) ActualLocalitySum() float64 { return r.actualLocality }

// ExpectedLocality returns the average locality, in percent, the table would
// have if every shard ran on its rank-r host.
func (r *Report) ExpectedLocality(rank placement.Rank) float64 {
	return r.percent(r.RankLocalitySum(rank))
}

// ActualLocality returns the average locality of the table in percent.
func (r *Report) ActualLocality() float64 {
	return r.percent(r.actualLocality)
}

func (r *Report) percent(sum float64) float64 {
	if r.totalShards == 0 {
		return 0
	}
	return 100 * sum / float64(r.totalShards)
}

// HostingServers returns the number of distinct hosts serving at least one shard.
func (r *Report) HostingServers() int { return r.hostingServers }

// AvgPerHost returns TotalShards / HostingServers rounded down, or 0 when no
// host serves any shard.
func (r *Report) AvgPerHost() int { return r.avgPerHost }

// MaxPerHost returns the highest shard count of any hosting server.
func (r *Report) MaxPerHost() int { return r.maxPerHost }

// MinPerHost returns the lowest shard count of any hosting server, or 0 when
// there are none.
func (r *Report) MinPerHost() int { return r.minPerHost }

// MostLoaded returns every host serving MaxPerHost shards, sorted by address.
func (r *Report) MostLoaded() []cluster.Host { return slices.Clone(r.mostLoaded) }

// LeastLoaded returns every host serving MinPerHost shards, sorted by address.
func (r *Report) LeastLoaded() []cluster.Host { return slices.Clone(r.leastLoaded) }

// HostLoad returns the number of analyzed shards served by h.
func (r *Report) HostLoad(h cluster.Host) int { return r.hostLoad[h] }

// RankSummary is the per-rank part of a Summary.
type RankSummary struct {
	Rank             string  `json:"rank" yaml:"rank"`
	Shards           int     `json:"shards" yaml:"shards"`
	ExpectedLocality float64 `json:"expected_locality_percent" yaml:"expected_locality_percent"`
}

// FaultSummary is the serializable form of a Fault.
type FaultSummary struct {
	Shard string `json:"shard" yaml:"shard"`
	Error string `json:"error" yaml:"error"`
}

// Summary is a plain, serializable copy of a Report.
type Summary struct {
	Table            string         `json:"table" yaml:"table"`
	TotalShards      int            `json:"total_shards" yaml:"total_shards"`
	TotalCompliant   int            `json:"total_compliant" yaml:"total_compliant"`
	Ranks            []RankSummary  `json:"ranks" yaml:"ranks"`
	Unassigned       []string       `json:"unassigned" yaml:"unassigned"`
	WithoutValidPlan []string       `json:"without_valid_plan" yaml:"without_valid_plan"`
	NonFavored       []string       `json:"non_favored" yaml:"non_favored"`
	Faults           []FaultSummary `json:"faults" yaml:"faults"`
	LocalityEnforced bool           `json:"locality_enforced" yaml:"locality_enforced"`
	ActualLocality   float64        `json:"actual_locality_percent" yaml:"actual_locality_percent"`
	HostingServers   int            `json:"hosting_servers" yaml:"hosting_servers"`
	AvgPerHost       int            `json:"avg_per_host" yaml:"avg_per_host"`
	MaxPerHost       int            `json:"max_per_host" yaml:"max_per_host"`
	MinPerHost       int            `json:"min_per_host" yaml:"min_per_host"`
	MostLoaded       []string       `json:"most_loaded" yaml:"most_loaded"`
	LeastLoaded      []string       `json:"least_loaded" yaml:"least_loaded"`
}

// Summary returns a serializable copy of the report.
func (r *Report) Summary() Summary {
	s := Summary{
		Table:            r.table,
		TotalShards:      r.totalShards,
		TotalCompliant:   r.totalCompliant,
		Ranks:            make([]RankSummary, 0, placement.NumRanks),
		Unassigned:       shard.Names(r.unassigned),
		WithoutValidPlan: shard.Names(r.withoutPlan),
		NonFavored:       shard.Names(r.nonFavored),
		Faults:           make([]FaultSummary, 0, len(r.faults)),
		LocalityEnforced: r.localityEnforced,
		ActualLocality:   r.ActualLocality(),
		HostingServers:   r.hostingServers,
		AvgPerHost:       r.avgPerHost,
		MaxPerHost:       r.maxPerHost,
		MinPerHost:       r.minPerHost,
		MostLoaded:       hostStrings(r.mostLoaded),
		LeastLoaded:      hostStrings(r.leastLoaded),
	}
	for _, rank := range placement.Ranks() {
		s.Ranks = append(s.Ranks, RankSummary{
			Rank:             rank.String(),
			Shards:           r.rankCounts[rank],
			ExpectedLocality: r.ExpectedLocality(rank),
		})
	}
	for _, f := range r.faults {
		s.Faults = append(s.Faults, FaultSummary{Shard: f.ShardName(), Error: f.Err.Error()})
	}
	return s
}

func hostStrings(hosts []cluster.Host) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.String())
	}
	return out
}
