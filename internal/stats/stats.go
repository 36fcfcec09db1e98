package stats

import (
	"expvar"
	"iter"
	"maps"
	"slices"
)

// Stats holds expvar-backed diagnostics counters of the normalization layer
// and publishes them under a common key prefix. All counters are expvar.Map
// and are safe for concurrent updates, so one Stats can be shared by batch
// workers. When the standard expvar HTTP handler is registered, these values
// are available at /debug/vars.
//
// - <prefix>_files_total: files seen by the batch walker
// - <prefix>_files_excluded: files skipped by type or size
// - <prefix>_files_errors: files which could not be read or decoded
// - <prefix>_hosts_total: host records seen in raw documents
// - <prefix>_hosts_dropped: host records without any identity field
// - <prefix>_services_dropped: service records with unparsable port
// - <prefix>_services_synthesized: services derived from finding ports
// - <prefix>_findings_total: finding records seen
// - <prefix>_findings_port_invalid: finding ports which became null
// - <prefix>_fields_defaulted: fields filled with a default value
// - <prefix>_severity_unrecognized: severity values mapped to Low by default
type Stats struct {
	prefix   string
	root     *expvar.Map
	files    *expvar.Map
	hosts    *expvar.Map
	services *expvar.Map
	findings *expvar.Map
	fields   *expvar.Map
	severity *expvar.Map
}

// New publishes new set of metrics. Registering the same metrics twice causes panic, so for tests, the prefix should be unique.
func New(prefix string) *Stats {
	root := expvar.NewMap(prefix)
	s := &Stats{
		prefix:   prefix,
		root:     root,
		files:    group(root, "files", "total", "excluded", "errors"),
		hosts:    group(root, "hosts", "total", "dropped"),
		services: group(root, "services", "dropped", "synthesized"),
		findings: group(root, "findings", "total", "port_invalid"),
		fields:   group(root, "fields", "defaulted"),
		severity: group(root, "severity", "unrecognized"),
	}
	return s
}

func group(root *expvar.Map, name string, keys ...string) *expvar.Map {
	m := new(expvar.Map).Init()
	for _, key := range keys {
		m.Add(key, 0)
	}
	root.Set(name, m)
	return m
}

func (s *Stats) IncFiles() {
	s.files.Add("total", 1)
}
func (s *Stats) IncExcludedFiles() {
	s.files.Add("excluded", 1)
}
func (s *Stats) IncErrFiles() {
	s.files.Add("errors", 1)
}
func (s *Stats) IncHosts() {
	s.hosts.Add("total", 1)
}
func (s *Stats) IncDroppedHosts() {
	s.hosts.Add("dropped", 1)
}
func (s *Stats) IncDroppedServices() {
	s.services.Add("dropped", 1)
}
func (s *Stats) IncSynthesizedServices() {
	s.services.Add("synthesized", 1)
}
func (s *Stats) IncFindings() {
	s.findings.Add("total", 1)
}
func (s *Stats) IncInvalidFindingPorts() {
	s.findings.Add("port_invalid", 1)
}
func (s *Stats) IncDefaultedFields(n int) {
	s.fields.Add("defaulted", int64(n))
}
func (s *Stats) IncUnknownSeverities() {
	s.severity.Add("unrecognized", 1)
}

// Stats returns a name, value iterator across registered metrics. This uses expvar.Do under the hood, so is safe to be called concurrently.
// Stats are returned in an alphabetic order.
func (s *Stats) Stats() iter.Seq2[string, string] {
	stats := make(map[string]string, 11)
	s.root.Do(func(group expvar.KeyValue) {
		m, ok := group.Value.(*expvar.Map)
		if !ok {
			return
		}
		m.Do(func(kv expvar.KeyValue) {
			stats[group.Key+"_"+kv.Key] = kv.Value.String()
		})
	})

	keys := slices.Sorted(maps.Keys(stats))
	return func(yield func(string, string) bool) {
		for _, key := range keys {
			if !yield(s.prefix+"_"+key, stats[key]) {
				return
			}
		}
	}
}
