package placement

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/shard"
)

func newTestSnapshot(t *testing.T) (*Snapshot, []*shard.Shard) {
	t.Helper()
	snap := NewSnapshot()
	shards := []*shard.Shard{
		shard.NewShard("usertable", "m", "", 1),
		shard.NewShard("usertable", "", "f", 1),
		shard.NewShard("usertable", "f", "m", 1),
	}
	for _, s := range shards {
		if err := snap.AddShard(s); err != nil {
			t.Fatalf("Failed to add shard: %v", err)
		}
	}
	return snap, shards
}

// TestNewSnapshot tests creation of an empty snapshot
func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot()

	if snap == nil {
		t.Fatal("Expected snapshot instance, got nil")
	}
	if len(snap.Tables()) != 0 {
		t.Errorf("Expected no tables, got %v", snap.Tables())
	}
	if len(snap.AssignmentMap()) != 0 {
		t.Errorf("Expected no assignments, got %d", len(snap.AssignmentMap()))
	}
	if len(snap.Plan()) != 0 {
		t.Errorf("Expected empty plan, got %d entries", len(snap.Plan()))
	}
}

// TestAddShard tests registering shards
func TestAddShard(t *testing.T) {
	t.Run("shards are grouped by table", func(t *testing.T) {
		snap, _ := newTestSnapshot(t)
		if err := snap.AddShard(shard.NewShard("other", "", "", 1)); err != nil {
			t.Fatalf("Failed to add shard: %v", err)
		}

		tables := snap.Tables()
		if len(tables) != 2 || tables[0] != "other" || tables[1] != "usertable" {
			t.Errorf("Expected sorted tables [other usertable], got %v", tables)
		}
	})

	t.Run("shard list is ordered by start key", func(t *testing.T) {
		snap, _ := newTestSnapshot(t)

		shards, err := snap.ShardsForTable("usertable")
		if err != nil {
			t.Fatalf("ShardsForTable failed: %v", err)
		}
		want := []string{"usertable,,1", "usertable,f,1", "usertable,m,1"}
		got := shard.Names(shards)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("shard[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("rejects nil, tableless and duplicate shards", func(t *testing.T) {
		snap, shards := newTestSnapshot(t)

		if err := snap.AddShard(nil); err == nil {
			t.Error("Expected error for nil shard")
		}
		if err := snap.AddShard(shard.NewShard("", "a", "", 1)); err == nil {
			t.Error("Expected error for shard without table")
		}
		if err := snap.AddShard(shard.NewShard(shards[0].Table, shards[0].StartKey, "zzz", shards[0].ID)); err == nil {
			t.Error("Expected error for duplicate shard name")
		}
	})

	t.Run("unknown table", func(t *testing.T) {
		snap, _ := newTestSnapshot(t)

		_, err := snap.ShardsForTable("missing")
		if !errors.Is(err, ErrUnknownTable) {
			t.Errorf("Expected ErrUnknownTable, got %v", err)
		}
	})
}

// TestAssignShard tests current assignment bookkeeping
func TestAssignShard(t *testing.T) {
	h1 := cluster.Host{Hostname: "h1", Port: 1}
	h2 := cluster.Host{Hostname: "h2", Port: 2}

	t.Run("assign and reassign", func(t *testing.T) {
		snap, shards := newTestSnapshot(t)

		if err := snap.AssignShard(shards[0].Name(), h1); err != nil {
			t.Fatalf("Failed to assign shard: %v", err)
		}
		if err := snap.AssignShard(shards[0].Name(), h2); err != nil {
			t.Fatalf("Failed to reassign shard: %v", err)
		}

		host, ok := snap.HostFor(shards[0])
		if !ok || host != h2 {
			t.Errorf("Expected %v after reassignment, got %v (ok=%v)", h2, host, ok)
		}
		if _, ok := snap.HostFor(shards[1]); ok {
			t.Error("Expected unassigned shard to have no host")
		}
	})

	t.Run("unassign", func(t *testing.T) {
		snap, shards := newTestSnapshot(t)
		snap.AssignShard(shards[0].Name(), h1)

		if err := snap.UnassignShard(shards[0].Name()); err != nil {
			t.Fatalf("Failed to unassign: %v", err)
		}
		if _, ok := snap.HostFor(shards[0]); ok {
			t.Error("Expected shard to be unassigned")
		}
		// Unassigning twice is fine
		if err := snap.UnassignShard(shards[0].Name()); err != nil {
			t.Errorf("Unexpected error unassigning twice: %v", err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		snap, shards := newTestSnapshot(t)

		if err := snap.AssignShard("nope,,1", h1); !errors.Is(err, ErrUnknownShard) {
			t.Errorf("Expected ErrUnknownShard, got %v", err)
		}
		if err := snap.AssignShard(shards[0].Name(), cluster.Host{}); err == nil {
			t.Error("Expected error for empty host")
		}
		if err := snap.UnassignShard("nope,,1"); !errors.Is(err, ErrUnknownShard) {
			t.Errorf("Expected ErrUnknownShard, got %v", err)
		}
		if err := snap.SetPlan("nope,,1", nil); !errors.Is(err, ErrUnknownShard) {
			t.Errorf("Expected ErrUnknownShard, got %v", err)
		}
	})

	t.Run("returned maps are copies", func(t *testing.T) {
		snap, shards := newTestSnapshot(t)
		snap.AssignShard(shards[0].Name(), h1)
		snap.SetPlan(shards[0].Name(), []cluster.Host{h1, h2})

		current := snap.AssignmentMap()
		current[shards[0].Name()] = h2
		if host, _ := snap.HostFor(shards[0]); host != h1 {
			t.Error("Mutating AssignmentMap result changed the snapshot")
		}

		plan := snap.Plan()
		plan[shards[0].Name()][0] = h2
		hosts, _ := snap.PlanFor(shards[0])
		if hosts[0] != h1 {
			t.Error("Mutating Plan result changed the snapshot")
		}
		if len(hosts) != 2 {
			t.Errorf("Expected short plan entry to be kept as is, got %d hosts", len(hosts))
		}
	})
}

// TestHostForKey tests routing a row key to its serving host
func TestHostForKey(t *testing.T) {
	snap, shards := newTestSnapshot(t)
	h1 := cluster.Host{Hostname: "h1", Port: 1}
	snap.AssignShard(shards[1].Name(), h1) // ["", "f")

	host, sh, err := snap.HostForKey("usertable", "apple")
	if err != nil {
		t.Fatalf("HostForKey failed: %v", err)
	}
	if host != h1 || sh != shards[1] {
		t.Errorf("Expected %v on %s, got %v on %v", h1, shards[1].Name(), host, sh)
	}

	if _, sh, err := snap.HostForKey("usertable", "zebra"); err == nil {
		t.Error("Expected error for unassigned shard")
	} else if sh != shards[0] {
		t.Errorf("Expected covering shard %s to be returned, got %v", shards[0].Name(), sh)
	}

	if _, _, err := snap.HostForKey("missing", "a"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Expected ErrUnknownTable, got %v", err)
	}
}

// TestSnapshotConcurrentAccess tests thread safety of the snapshot
func TestSnapshotConcurrentAccess(t *testing.T) {
	snap := NewSnapshot()
	var names []string
	for i := 0; i < 20; i++ {
		s := shard.NewShard("t", fmt.Sprintf("k%02d", i), "", int64(i))
		snap.AddShard(s)
		names = append(names, s.Name())
	}

	var wg sync.WaitGroup
	numOps := 100

	wg.Add(numOps * 2)
	for i := 0; i < numOps; i++ {
		go func(id int) {
			defer wg.Done()
			host := cluster.Host{Hostname: fmt.Sprintf("h%d", id%5), Port: 1}
			snap.AssignShard(names[id%20], host)
			snap.SetPlan(names[id%20], []cluster.Host{host})
		}(i)
		go func(id int) {
			defer wg.Done()
			shards, _ := snap.ShardsForTable("t")
			for _, s := range shards {
				snap.HostFor(s)
				snap.PlanFor(s)
			}
			snap.AssignmentMap()
			snap.HostForKey("t", fmt.Sprintf("k%02d", id%20))
		}(i)
	}
	wg.Wait()

	if len(snap.AssignmentMap()) != 20 {
		t.Errorf("Expected all 20 shards assigned, got %d", len(snap.AssignmentMap()))
	}
}
