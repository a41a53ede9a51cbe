// Package cluster holds the identity of serving hosts and the small HTTP helper
// used to pull placement snapshots from a remote endpoint.
//
// # Hosts
//
// A Host is a (hostname, port) pair. Two hosts are the same serving node only
// when both parts match, so a host restarted on another port counts as a new
// node for load accounting. Locality data, on the other hand, is keyed by the
// bare hostname, because block replicas live on the machine and not on the
// process:
//
//	h, _ := cluster.ParseHost("rs1.example.com:60020")
//	h.String()   // "rs1.example.com:60020"
//	h.Hostname   // "rs1.example.com" (locality key)
//
// Host implements encoding.TextMarshaler, so it round-trips through JSON and
// YAML as a plain "hostname:port" string, including as a map key.
//
// # Fetching
//
// GetJSON performs a GET with a 5 second client timeout and decodes the JSON
// body. Any status >= 300 is an error.
package cluster
