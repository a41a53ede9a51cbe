package verify

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/plancheck/internal/placement"
)

// AnalyzeTables verifies several tables of one snapshot concurrently, each in
// its own independent analysis. An empty tables list means every table in the
// snapshot. At most parallelism analyses run at once; parallelism <= 0 means
// no limit.
//
// The first error (unknown table, canceled context) stops the remaining work
// and is returned.
func (a *Analyzer) AnalyzeTables(ctx context.Context, snap *placement.Snapshot, tables []string,
	locality placement.Locality, parallelism int,
) (map[string]*Report, error) {
	if snap == nil {
		return nil, errors.New("snapshot cannot be nil")
	}
	if len(tables) == 0 {
		tables = snap.Tables()
	}

	var lookup LocalityLookup
	if locality != nil {
		lookup = locality
	}

	var (
		mu      sync.Mutex
		reports = make(map[string]*Report, len(tables))
	)

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for _, table := range tables {
		table := table
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			shards, err := snap.ShardsForTable(table)
			if err != nil {
				return err
			}
			report, err := a.Analyze(Input{
				Table:    table,
				Shards:   shards,
				Current:  snap,
				Plan:     snap,
				Locality: lookup,
			})
			if err != nil {
				return err
			}

			mu.Lock()
			reports[table] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
