// Package placement models where shards live now and where they are meant to live.
// See doc.go for complete package documentation.
package placement

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/shard"
)

var (
	// ErrUnknownTable is returned when a table has no shards in the snapshot.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownShard is returned when a shard name is not part of the snapshot.
	ErrUnknownShard = errors.New("unknown shard")
)

// Snapshot is a point-in-time view of a cluster's placement state: the shards
// of every table, the host currently serving each shard, and the placement plan.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│               Snapshot                   │
//	├──────────────────────────────────────────┤
//	│  tables:      table → []*Shard           │
//	│  assignments: shard name → Host          │
//	│  plan:        shard name → [K]Host       │
//	├──────────────────────────────────────────┤
//	│  "usertable,user100,7" → rs2:60020       │
//	│  plan: [rs1:60020, rs2:60020, rs3:60020] │
//	└──────────────────────────────────────────┘
//
// A shard may be unassigned (no entry in assignments) or have no plan entry;
// both are findings for verification, not errors.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned collections are copies
//
// Verification treats a snapshot as stable for the duration of one analysis;
// populate it first, then analyze.
type Snapshot struct {
	// tables maps a table name to its shards in insertion order.
	tables map[string][]*shard.Shard

	// byName indexes every shard by Name().
	byName map[string]*shard.Shard

	// assignments maps shard names to their current host.
	// A shard missing from this map is unassigned.
	assignments Assignment

	// plan holds the preferred hosts per shard name.
	plan Plan

	mu sync.RWMutex
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		tables:      make(map[string][]*shard.Shard),
		byName:      make(map[string]*shard.Shard),
		assignments: make(Assignment),
		plan:        make(Plan),
	}
}

// AddShard registers a shard under its table.
//
// Returns:
//   - nil on success
//   - Error if the shard is nil, has no table, or a shard with the same
//     name is already registered
func (s *Snapshot) AddShard(sh *shard.Shard) error {
	if sh == nil {
		return errors.New("shard cannot be nil")
	}
	if sh.Table == "" {
		return errors.Errorf("shard %q has no table", sh.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := sh.Name()
	if _, exists := s.byName[name]; exists {
		return errors.Errorf("duplicate shard %q", name)
	}
	s.byName[name] = sh
	s.tables[sh.Table] = append(s.tables[sh.Table], sh)
	return nil
}

// AssignShard records that the named shard is currently served by host.
// A previous assignment is overwritten.
func (s *Snapshot) AssignShard(name string, host cluster.Host) error {
	if host.IsZero() {
		return errors.Errorf("shard %q: host cannot be empty", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return errors.Wrapf(ErrUnknownShard, "assign %q", name)
	}
	s.assignments[name] = host
	return nil
}

// UnassignShard removes the current assignment of the named shard.
// No error if the shard was not assigned.
func (s *Snapshot) UnassignShard(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return errors.Wrapf(ErrUnknownShard, "unassign %q", name)
	}
	delete(s.assignments, name)
	return nil
}

// SetPlan stores the preferred hosts of the named shard, most preferred first.
// Entries of the wrong length are accepted and reported by verification.
func (s *Snapshot) SetPlan(name string, hosts []cluster.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return errors.Wrapf(ErrUnknownShard, "plan %q", name)
	}
	s.plan[name] = slices.Clone(hosts)
	return nil
}

// Tables returns the names of all tables, sorted.
func (s *Snapshot) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]string, 0, len(s.tables))
	for t := range s.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// ShardsForTable returns the full shard list of a table, ordered by start key.
func (s *Snapshot) ShardsForTable(table string) ([]*shard.Shard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shards, ok := s.tables[table]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTable, "table %q", table)
	}
	out := slices.Clone(shards)
	shard.Sort(out)
	return out, nil
}

// HostFor returns the host currently serving sh.
func (s *Snapshot) HostFor(sh *shard.Shard) (cluster.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments.HostFor(sh)
}

// PlanFor returns the preferred hosts of sh. The returned slice is a copy.
func (s *Snapshot) PlanFor(sh *shard.Shard) ([]cluster.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts, ok := s.plan.PlanFor(sh)
	if !ok {
		return nil, false
	}
	return slices.Clone(hosts), true
}

// AssignmentMap returns a copy of the current shard to host mapping.
func (s *Snapshot) AssignmentMap() Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Assignment, len(s.assignments))
	for name, h := range s.assignments {
		out[name] = h
	}
	return out
}

// Plan returns a copy of the placement plan.
func (s *Snapshot) Plan() Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan.Clone()
}

// HostForKey finds the shard of table containing key and the host serving it.
//
// Routing process:
//   - table + row key → shard whose [StartKey, EndKey) contains the key
//   - shard → current host
//
// Returns an error if the table is unknown, no shard covers the key, or the
// covering shard is unassigned.
func (s *Snapshot) HostForKey(table, key string) (cluster.Host, *shard.Shard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shards, ok := s.tables[table]
	if !ok {
		return cluster.Host{}, nil, errors.Wrapf(ErrUnknownTable, "table %q", table)
	}
	idx := slices.IndexFunc(shards, func(sh *shard.Shard) bool { return sh.Contains(key) })
	if idx < 0 {
		return cluster.Host{}, nil, errors.Errorf("no shard of table %q covers key %q", table, key)
	}
	sh := shards[idx]
	host, ok := s.assignments[sh.Name()]
	if !ok {
		return cluster.Host{}, sh, errors.Errorf("shard %q is not assigned to any host", sh.Name())
	}
	return host, sh, nil
}
