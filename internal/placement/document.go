package placement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/plancheck/internal/cluster"
	"github.com/dreamware/plancheck/internal/shard"
)

// Format is the encoding of a snapshot document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ShardSpec describes one shard in a snapshot document.
type ShardSpec struct {
	StartKey string `json:"start_key" yaml:"start_key"`
	EndKey   string `json:"end_key" yaml:"end_key"`
	ID       int64  `json:"id" yaml:"id"`
}

// Document is the serialized form of a placement snapshot.
//
// Assignments, plan and locality are keyed by shard name ("table,startKey,id").
// Hosts are "hostname:port" strings; locality is keyed by bare hostname.
// A document without a locality section disables locality checks.
type Document struct {
	Tables      map[string][]ShardSpec        `json:"tables" yaml:"tables"`
	Assignments map[string]string             `json:"assignments" yaml:"assignments"`
	Plan        map[string][]string           `json:"plan" yaml:"plan"`
	Locality    map[string]map[string]float64 `json:"locality,omitempty" yaml:"locality,omitempty"`
}

// FormatForPath picks the document format from a file extension.
// Anything that is not .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Decode reads a document in the given format.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode json snapshot")
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "decode yaml snapshot")
		}
	default:
		return nil, errors.Errorf("unsupported snapshot format %q", format)
	}
	return &doc, nil
}

// Encode writes the document in the given format.
func (d *Document) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(d), "encode json snapshot")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return errors.Wrap(err, "encode yaml snapshot")
		}
		return errors.Wrap(enc.Close(), "encode yaml snapshot")
	default:
		return errors.Errorf("unsupported snapshot format %q", format)
	}
}

// Build turns the document into a Snapshot and, if the document has a
// locality section, a Locality keyed by encoded shard name.
func (d *Document) Build() (*Snapshot, Locality, error) {
	snap := NewSnapshot()

	tables := make([]string, 0, len(d.Tables))
	for t := range d.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		for _, spec := range d.Tables[table] {
			if err := snap.AddShard(shard.NewShard(table, spec.StartKey, spec.EndKey, spec.ID)); err != nil {
				return nil, nil, errors.Wrapf(err, "table %q", table)
			}
		}
	}

	for name, addr := range d.Assignments {
		host, err := cluster.ParseHost(addr)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "assignment of %q", name)
		}
		if err := snap.AssignShard(name, host); err != nil {
			return nil, nil, err
		}
	}

	for name, addrs := range d.Plan {
		hosts := make([]cluster.Host, 0, len(addrs))
		for _, addr := range addrs {
			host, err := cluster.ParseHost(addr)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "plan of %q", name)
			}
			hosts = append(hosts, host)
		}
		if err := snap.SetPlan(name, hosts); err != nil {
			return nil, nil, err
		}
	}

	if d.Locality == nil {
		return snap, nil, nil
	}
	locality := make(Locality, len(d.Locality))
	for name, scores := range d.Locality {
		encoded := shard.EncodeName(name)
		for hostname, score := range scores {
			locality.Set(encoded, hostname, score)
		}
		if len(scores) == 0 {
			locality[encoded] = map[string]float64{}
		}
	}
	return snap, locality, nil
}

// ReadFile reads a snapshot document from disk, picking the format from the
// file extension.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	doc, err := Decode(bytes.NewReader(data), FormatForPath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", path)
	}
	return doc, nil
}

// LoadFile reads and builds a snapshot document from disk.
func LoadFile(path string) (*Snapshot, Locality, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return doc.Build()
}

// Fetch downloads a JSON snapshot document and builds it.
func Fetch(ctx context.Context, url string) (*Snapshot, Locality, error) {
	var doc Document
	if err := cluster.GetJSON(ctx, url, &doc); err != nil {
		return nil, nil, errors.Wrapf(err, "fetch snapshot from %s", url)
	}
	return doc.Build()
}
