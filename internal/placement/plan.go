package placement

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/shard"
)

// Rank is the preference position of a host in a shard's plan.
type Rank int

const (
	Primary Rank = iota
	Secondary
	Tertiary
)

// NumRanks is the number of preferred hosts every valid plan entry carries.
const NumRanks = 3

var rankNames = [NumRanks]string{"PRIMARY", "SECONDARY", "TERTIARY"}

// Ranks returns all ranks in preference order.
func Ranks() []Rank {
	return []Rank{Primary, Secondary, Tertiary}
}

func (r Rank) String() string {
	if !r.Valid() {
		return fmt.Sprintf("RANK(%d)", int(r))
	}
	return rankNames[r]
}

// Valid reports whether r is one of the defined ranks.
func (r Rank) Valid() bool {
	return r >= 0 && r < NumRanks
}

// Plan maps shard names to their preferred hosts, most preferred first.
//
// Entries are stored as given. An entry whose length is not NumRanks is kept
// so that verification can report it; it is never silently corrected.
type Plan map[string][]cluster.Host

// PlanFor returns the preferred hosts of s, if the plan has an entry for it.
func (p Plan) PlanFor(s *shard.Shard) ([]cluster.Host, bool) {
	if s == nil {
		return nil, false
	}
	hosts, ok := p[s.Name()]
	return hosts, ok
}

// IsValid reports whether hosts is a complete plan entry.
func IsValid(hosts []cluster.Host) bool {
	return len(hosts) == NumRanks
}

// RankOf returns the rank of h within hosts.
// The first exact match wins; hosts beyond NumRanks are never ranked.
func RankOf(hosts []cluster.Host, h cluster.Host) (Rank, bool) {
	idx := slices.Index(hosts, h)
	if idx < 0 || idx >= NumRanks {
		return 0, false
	}
	return Rank(idx), true
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := make(Plan, len(p))
	for name, hosts := range p {
		out[name] = slices.Clone(hosts)
	}
	return out
}

// Assignment maps shard names to the host currently serving them.
type Assignment map[string]cluster.Host

// HostFor returns the host currently serving s.
func (a Assignment) HostFor(s *shard.Shard) (cluster.Host, bool) {
	if s == nil {
		return cluster.Host{}, false
	}
	h, ok := a[s.Name()]
	return h, ok
}

// Locality maps encoded shard names to per-hostname locality scores in [0, 1].
// A shard without an entry has no locality data; that is not the same as zero.
type Locality map[string]map[string]float64

// ScoresFor returns the hostname to score table of s.
func (l Locality) ScoresFor(s *shard.Shard) (map[string]float64, bool) {
	if s == nil {
		return nil, false
	}
	scores, ok := l[s.EncodedName()]
	return scores, ok
}

// Set records a score for hostname on the shard with the given encoded name.
func (l Locality) Set(encodedName, hostname string, score float64) {
	scores, ok := l[encodedName]
	if !ok {
		scores = make(map[string]float64)
		l[encodedName] = scores
	}
	scores[hostname] = score
}
