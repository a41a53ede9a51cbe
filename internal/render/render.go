// Package render formats verification reports for people and machines.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/shard"
	"github.com/dreamware/plancheck/internal/verify"
)

// ErrNilReport is returned when asked to render a report that does not exist.
var ErrNilReport = errors.New("report has not been produced")

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", errors.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Write renders reports in the given format. Text output lists shard and
// host names only in detail mode; JSON and YAML always carry everything.
func Write(w io.Writer, format Format, detail bool, reports ...*verify.Report) error {
	for _, r := range reports {
		if r == nil {
			return ErrNilReport
		}
	}
	switch format {
	case FormatText:
		for _, r := range reports {
			if err := Text(w, r, detail); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		return JSON(w, reports...)
	case FormatYAML:
		return YAML(w, reports...)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func summaries(reports []*verify.Report) []verify.Summary {
	out := make([]verify.Summary, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.Summary())
	}
	return out
}

// JSON writes the reports as an indented JSON array.
func JSON(w io.Writer, reports ...*verify.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(summaries(reports)), "encode json report")
}

// YAML writes the reports as a YAML sequence.
func YAML(w io.Writer, reports ...*verify.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summaries(reports)); err != nil {
		return errors.Wrap(err, "encode yaml report")
	}
	return errors.Wrap(enc.Close(), "encode yaml report")
}

// Text writes the human readable verification report of one table.
func Text(w io.Writer, r *verify.Report, detail bool) error {
	if r == nil {
		return ErrNilReport
	}
	p := &printer{w: w}

	p.printf("Shard Placement Verification for Table: %s\n", r.Table())
	p.printf("\tTotal shards : %d\n", r.TotalShards())

	p.printf("\tTotal shards on preferred hosts %d\n", r.TotalCompliant())
	for _, rank := range placement.Ranks() {
		p.printf("\t\tTotal shards on %s hosts: %d\n", rank, r.RankCount(rank))
	}

	p.printf("\tTotal unassigned shards: %d\n", len(r.Unassigned()))
	p.shards(detail, r.Unassigned())
	p.printf("\tTotal shards NOT on preferred hosts: %d\n", len(r.NonFavored()))
	p.shards(detail, r.NonFavored())
	p.printf("\tTotal shards without preferred hosts: %d\n", len(r.WithoutValidPlan()))
	p.shards(detail, r.WithoutValidPlan())

	if faults := r.Faults(); len(faults) > 0 {
		p.printf("\tTotal shards that could not be verified: %d\n", len(faults))
		if detail {
			for _, f := range faults {
				p.printf("\t\t%s: %v\n", f.ShardName(), f.Err)
			}
		}
	}

	if r.LocalityEnforced() && r.TotalShards() != 0 {
		p.printf("\n\tThe actual avg locality is %s %%\n", percent(r.ActualLocality()))
		for _, rank := range placement.Ranks() {
			p.printf("\t\tThe expected avg locality if all shards on the %s hosts: %s %%\n",
				rank, percent(r.ExpectedLocality(rank)))
		}
	}

	p.printf("\n\tTotal hosting servers: %d\n", r.HostingServers())
	if r.HostingServers() != 0 {
		p.printf("\tAvg shards/host: %d;\tMax shards/host: %d;\tMin shards/host: %d\n",
			r.AvgPerHost(), r.MaxPerHost(), r.MinPerHost())

		p.printf("\tThe number of the most loaded hosts: %d\n", len(r.MostLoaded()))
		p.hosts(detail, r.MostLoaded())
		p.printf("\tThe number of the least loaded hosts: %d\n", len(r.LeastLoaded()))
		p.hosts(detail, r.LeastLoaded())
	}
	p.printf("==============================\n")
	return p.err
}

// percent formats with at most two decimals and no trailing zeros.
func percent(v float64) string {
	return strconv.FormatFloat(float64(int64(v*100+0.5))/100, 'f', -1, 64)
}

// printer remembers the first write error so the layout code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) shards(detail bool, shards []*shard.Shard) {
	if !detail {
		return
	}
	for _, s := range shards {
		p.printf("\t\t%s\n", s.Name())
	}
}

// hosts lists three hosts per line.
func (p *printer) hosts(detail bool, hosts []cluster.Host) {
	if !detail || len(hosts) == 0 {
		return
	}
	for i, h := range hosts {
		if i%3 == 0 {
			p.printf("\t\t")
		}
		p.printf("%s ; ", h)
		if i%3 == 2 || i == len(hosts)-1 {
			p.printf("\n")
		}
	}
}
