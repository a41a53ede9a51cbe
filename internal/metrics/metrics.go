// Package metrics exposes verification reports as Prometheus gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/verify"
)

const namespace = "plancheck"

type Metrics struct {
	// Shard counts
	ShardsTotal *prometheus.GaugeVec
	Shards      *prometheus.GaugeVec
	RankShards  *prometheus.GaugeVec

	// Locality
	LocalityPercent *prometheus.GaugeVec

	// Balance
	HostingServers *prometheus.GaugeVec
	ShardsPerHost  *prometheus.GaugeVec
	HostsAtBound   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ShardsTotal: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shards_total",
			Help:      "Number of shards of the table in the last verification",
		}, []string{"table"}),
		Shards: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shards",
			Help:      "Shards per verification outcome",
		}, []string{"table", "classification"}), // compliant/unassigned/without_valid_plan/non_favored/faulted
		RankShards: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rank_shards",
			Help:      "Shards served from their preferred host of the given rank",
		}, []string{"table", "rank"}),
		LocalityPercent: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locality_percent",
			Help:      "Average locality; rank=actual is the live placement",
		}, []string{"table", "rank"}),
		HostingServers: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosting_servers",
			Help:      "Distinct hosts serving at least one shard of the table",
		}, []string{"table"}),
		ShardsPerHost: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shards_per_host",
			Help:      "Shards per hosting server",
		}, []string{"table", "stat"}), // avg/max/min
		HostsAtBound: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosts_at_load_bound",
			Help:      "Number of hosts tied at the maximum or minimum load",
		}, []string{"table", "bound"}), // max/min
	}
}

// Observe records the figures of r, replacing earlier values for its table.
func (m *Metrics) Observe(r *verify.Report) {
	table := r.Table()

	m.ShardsTotal.WithLabelValues(table).Set(float64(r.TotalShards()))
	m.Shards.WithLabelValues(table, "compliant").Set(float64(r.TotalCompliant()))
	m.Shards.WithLabelValues(table, "unassigned").Set(float64(len(r.Unassigned())))
	m.Shards.WithLabelValues(table, "without_valid_plan").Set(float64(len(r.WithoutValidPlan())))
	m.Shards.WithLabelValues(table, "non_favored").Set(float64(len(r.NonFavored())))
	m.Shards.WithLabelValues(table, "faulted").Set(float64(len(r.Faults())))

	for _, rank := range placement.Ranks() {
		m.RankShards.WithLabelValues(table, rank.String()).Set(float64(r.RankCount(rank)))
	}

	if r.LocalityEnforced() {
		for _, rank := range placement.Ranks() {
			m.LocalityPercent.WithLabelValues(table, rank.String()).Set(r.ExpectedLocality(rank))
		}
		m.LocalityPercent.WithLabelValues(table, "actual").Set(r.ActualLocality())
	} else {
		m.LocalityPercent.DeletePartialMatch(prometheus.Labels{"table": table})
	}

	m.HostingServers.WithLabelValues(table).Set(float64(r.HostingServers()))
	m.ShardsPerHost.WithLabelValues(table, "avg").Set(float64(r.AvgPerHost()))
	m.ShardsPerHost.WithLabelValues(table, "max").Set(float64(r.MaxPerHost()))
	m.ShardsPerHost.WithLabelValues(table, "min").Set(float64(r.MinPerHost()))
	m.HostsAtBound.WithLabelValues(table, "max").Set(float64(len(r.MostLoaded())))
	m.HostsAtBound.WithLabelValues(table, "min").Set(float64(len(r.LeastLoaded())))
}
