// Package verify checks a table's live shard placement against its placement plan.
// See doc.go for complete package documentation.
package verify

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/shard"
)

var (
	// ErrNoShardList is returned when Analyze is called without a shard list.
	ErrNoShardList = errors.New("no shard list")
	// ErrNoAssignment is returned when Analyze is called without a current assignment.
	ErrNoAssignment = errors.New("no current assignment")
	// ErrNoPlan is returned when Analyze is called without a placement plan.
	ErrNoPlan = errors.New("no placement plan")
	// ErrNilShard is the fault recorded for a nil entry in the shard list.
	ErrNilShard = errors.New("nil shard reference")
)

// AssignmentLookup resolves the host a shard is currently served from.
type AssignmentLookup interface {
	HostFor(s *shard.Shard) (cluster.Host, bool)
}

// PlanLookup resolves a shard's preferred hosts, most preferred first.
type PlanLookup interface {
	PlanFor(s *shard.Shard) ([]cluster.Host, bool)
}

// LocalityLookup resolves a shard's hostname to locality score table.
type LocalityLookup interface {
	ScoresFor(s *shard.Shard) (map[string]float64, bool)
}

// Input is everything one analysis needs. Locality is optional; leaving it nil
// disables locality aggregation.
//
// The lookups must not be mutated while Analyze runs.
type Input struct {
	Table    string
	Shards   []*shard.Shard
	Current  AssignmentLookup
	Plan     PlanLookup
	Locality LocalityLookup
}

// Analyzer builds verification reports.
// It holds no state between calls and is safe for concurrent use.
type Analyzer struct {
	logger logrus.FieldLogger
}

// NewAnalyzer creates an analyzer that logs faults to logger.
// A nil logger discards all output.
func NewAnalyzer(logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Analyzer{logger: logger}
}

type outcome int

const (
	outcomeUnassigned outcome = iota + 1
	outcomeWithoutPlan
	outcomeNonFavored
	outcomeCompliant
)

// shardResult is the classification of one shard plus its contribution to
// the running aggregates. It is committed only if classification succeeds.
type shardResult struct {
	outcome outcome
	host    cluster.Host
	rank    placement.Rank

	localityChecked bool
	rankScores      [placement.NumRanks]float64
	actualScore     float64
}

// Analyze verifies the placement of in.Shards and returns the completed report.
//
// The shard list is walked once. For every shard, in order:
//  1. no current host: unassigned
//  2. count the shard against its host's load
//  3. plan entry missing or not placement.NumRanks long: without valid plan
//  4. host not in the plan entry: non-favored
//  5. otherwise compliant at the host's rank, and with locality data the
//     scores of each ranked host and of the actual host are summed
//
// A shard that cannot be classified (nil entry, failing lookup, malformed
// locality score) is logged and recorded as a Fault; none of its
// contributions are kept and the walk continues.
//
// Analyze only fails when no report can be built at all.
func (a *Analyzer) Analyze(in Input) (*Report, error) {
	if in.Shards == nil {
		return nil, errors.Wrapf(ErrNoShardList, "table %q", in.Table)
	}
	if in.Current == nil {
		return nil, errors.Wrapf(ErrNoAssignment, "table %q", in.Table)
	}
	if in.Plan == nil {
		return nil, errors.Wrapf(ErrNoPlan, "table %q", in.Table)
	}

	log := a.logger.WithField("table", in.Table)
	locality := in.Locality
	if !localityEnabled(locality) {
		locality = nil
	}

	r := &Report{
		table:       in.Table,
		totalShards: len(in.Shards),
		hostLoad:    make(map[cluster.Host]int),
	}

	for _, s := range in.Shards {
		res, err := classify(s, in.Current, in.Plan, locality)
		if err != nil {
			f := Fault{Shard: s, Err: err}
			r.faults = append(r.faults, f)
			log.WithField("shard", f.ShardName()).WithError(err).
				Error("cannot verify shard assignment")
			continue
		}
		r.commit(s, res)
	}

	r.fillLoad()

	log.WithFields(logrus.Fields{
		"shards":    r.totalShards,
		"compliant": r.totalCompliant,
		"hosts":     r.hostingServers,
		"faults":    len(r.faults),
	}).Debug("placement verified")

	return r, nil
}

// classify computes one shard's result. Panics raised by lookups are turned
// into errors so one bad shard cannot abort the pass.
func classify(s *shard.Shard, current AssignmentLookup, plan PlanLookup, locality LocalityLookup) (res shardResult, err error) {
	if s == nil {
		return res, ErrNilShard
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("lookup panicked: %v", p)
		}
	}()

	host, ok := current.HostFor(s)
	if !ok {
		res.outcome = outcomeUnassigned
		return res, nil
	}
	res.host = host

	hosts, ok := plan.PlanFor(s)
	if !ok || !placement.IsValid(hosts) {
		res.outcome = outcomeWithoutPlan
		return res, nil
	}

	rank, ok := placement.RankOf(hosts, host)
	if !ok {
		res.outcome = outcomeNonFavored
		return res, nil
	}
	res.outcome = outcomeCompliant
	res.rank = rank

	if locality == nil {
		return res, nil
	}
	res.localityChecked = true

	scores, ok := locality.ScoresFor(s)
	if !ok {
		// no locality data for this shard
		return res, nil
	}
	for _, rk := range placement.Ranks() {
		score, ok, err := lookupScore(scores, hosts[rk].Hostname)
		if err != nil {
			return res, err
		}
		if ok {
			res.rankScores[rk] = score
		}
	}
	score, ok, err := lookupScore(scores, host.Hostname)
	if err != nil {
		return res, err
	}
	if ok {
		res.actualScore = score
	}
	return res, nil
}

func lookupScore(scores map[string]float64, hostname string) (float64, bool, error) {
	score, ok := scores[hostname]
	if !ok {
		return 0, false, nil
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, false, errors.Errorf("locality score %v for host %q is outside [0, 1]", score, hostname)
	}
	return score, true, nil
}

func (r *Report) commit(s *shard.Shard, res shardResult) {
	if res.outcome != outcomeUnassigned {
		r.hostLoad[res.host]++
	}

	switch res.outcome {
	case outcomeUnassigned:
		r.unassigned = append(r.unassigned, s)
	case outcomeWithoutPlan:
		r.withoutPlan = append(r.withoutPlan, s)
	case outcomeNonFavored:
		r.nonFavored = append(r.nonFavored, s)
	case outcomeCompliant:
		r.rankCounts[res.rank]++
		r.totalCompliant++
		if res.localityChecked {
			r.localityEnforced = true
			for i, score := range res.rankScores {
				r.rankLocality[i] += score
			}
			r.actualLocality += res.actualScore
		}
	}
}

// fillLoad derives the balance figures from the per-host counters.
// The extremal sets keep every tied host, independent of map order.
func (r *Report) fillLoad() {
	first := true
	for host, n := range r.hostLoad {
		if first {
			r.maxPerHost, r.minPerHost = n, n
			r.mostLoaded = []cluster.Host{host}
			r.leastLoaded = []cluster.Host{host}
			first = false
			continue
		}

		if n > r.maxPerHost {
			r.maxPerHost = n
			r.mostLoaded = []cluster.Host{host}
		} else if n == r.maxPerHost {
			r.mostLoaded = append(r.mostLoaded, host)
		}

		if n < r.minPerHost {
			r.minPerHost = n
			r.leastLoaded = []cluster.Host{host}
		} else if n == r.minPerHost {
			r.leastLoaded = append(r.leastLoaded, host)
		}
	}

	r.hostingServers = len(r.hostLoad)
	if r.hostingServers > 0 {
		r.avgPerHost = r.totalShards / r.hostingServers
	}

	byAddr := func(a, b cluster.Host) int {
		if a.Hostname != b.Hostname {
			if a.Hostname < b.Hostname {
				return -1
			}
			return 1
		}
		return a.Port - b.Port
	}
	slices.SortFunc(r.mostLoaded, byAddr)
	slices.SortFunc(r.leastLoaded, byAddr)
}

// localityEnabled treats a nil placement.Locality stored in the interface the
// same as no locality at all.
func localityEnabled(l LocalityLookup) bool {
	switch v := l.(type) {
	case nil:
		return false
	case placement.Locality:
		return v != nil
	default:
		return true
	}
}
