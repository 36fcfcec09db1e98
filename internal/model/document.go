package model

import "strings"

// Raw is a scan document as produced by a loader: an untyped nested mapping
// whose shape depends on the exporting tool and its version.
type Raw = map[string]any

// Default values used when a field can't be resolved from a raw record.
const (
	DefaultOS              = "Unknown"
	DefaultProtocol        = "tcp"
	DefaultServiceName     = "unknown"
	DefaultFindingName     = "Unnamed Finding"
	DefaultSeverityLabel   = "Low"
	DefaultScope           = "scope:unknown"
	DefaultHostTopN        = 10
	DefaultSeverityWeight  = 2.5
	UnknownIP              = "unknown-ip"
	UnknownPluginID        = "unknown"
	UnknownPortPlaceholder = "n/a"
)

// Document is the canonical, vendor independent representation of a scan.
type Document struct {
	// Scan is opaque metadata passed through from the raw document.
	Scan  map[string]any `json:"scan"`
	Hosts []Host         `json:"hosts"`
}

// Host is a canonical host record. IP is the host identity.
type Host struct {
	IP              string    `json:"ip"`
	Hostname        string    `json:"hostname"`
	OS              string    `json:"os"`
	Services        []Service `json:"services"`
	Vulnerabilities []Finding `json:"vulnerabilities"`
}

// Service is a canonical service record. Port is the join key with findings.
type Service struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Service  string `json:"service"`
}

// Finding is a single reported issue on a host.
type Finding struct {
	// PluginID is an opaque vendor identifier, nil when the record has none.
	PluginID any    `json:"plugin_id"`
	Name     string `json:"name"`
	// Severity is the raw, not yet mapped, severity value (label or number).
	Severity       any     `json:"severity"`
	CVSS           float64 `json:"cvss"`
	Port           *int    `json:"port"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
}

// Scope returns the scan scope as a single string: a list is joined with
// ", ", a string is returned as is, anything else gives DefaultScope.
func (d Document) Scope() string {
	switch x := d.Scan["scope"].(type) {
	case string:
		if x != "" {
			return x
		}
	case []string:
		if len(x) > 0 {
			return strings.Join(x, ", ")
		}
	case []any:
		if len(x) > 0 {
			parts := make([]string, 0, len(x))
			for _, p := range x {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return DefaultScope
}
