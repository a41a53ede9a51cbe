package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Host identifies a serving node by hostname and port.
// Hosts are comparable and can be used directly as map keys.
type Host struct {
	Hostname string
	Port     int
}

// String returns the host in "hostname:port" form.
func (h Host) String() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}

// IsZero reports whether h is the zero Host.
func (h Host) IsZero() bool {
	return h.Hostname == "" && h.Port == 0
}

// ParseHost parses a "hostname:port" string.
func ParseHost(s string) (Host, error) {
	hostname, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Host{}, fmt.Errorf("parse host %q: %w", s, err)
	}
	if hostname == "" {
		return Host{}, fmt.Errorf("parse host %q: empty hostname", s)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return Host{}, fmt.Errorf("parse host %q: invalid port %q", s, port)
	}
	return Host{Hostname: hostname, Port: p}, nil
}

// MarshalText encodes the host as "hostname:port" so hosts can be map keys in JSON.
func (h Host) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (h *Host) UnmarshalText(text []byte) error {
	parsed, err := ParseHost(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
