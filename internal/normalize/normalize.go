// Package normalize maps vendor shaped scan documents onto model.Document.
//
// Every logical field is resolved through an ordered list of candidate keys
// (model.Fields). A value is present unless it is nil, an empty string, false
// or an empty list or map. Per-record problems never fail the call: records
// without identity are dropped, other fields fall back to defaults. Each such
// degradation is logged at debug level and counted in the optional
// model.Stats. The only error is a structural one, when hosts is not a list.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/CZERTAINLY/vuln-lens/internal/cvss"
	"github.com/CZERTAINLY/vuln-lens/internal/log"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/severity"
)

// Normalizer converts raw documents. It holds no per-call state and is safe
// for concurrent use as long as its Stats is.
type Normalizer struct {
	fields model.Fields
	stats  model.Stats
}

// New returns a Normalizer using fields, zero Fields means model.DefaultFields.
func New(fields model.Fields) *Normalizer {
	if fields.IsZero() {
		fields = model.DefaultFields()
	}
	return &Normalizer{fields: fields}
}

// WithStats returns a copy of n counting degradations in s.
func (n *Normalizer) WithStats(s model.Stats) *Normalizer {
	ret := *n
	ret.stats = s
	return &ret
}

// Normalize converts raw with the default field lists.
func Normalize(ctx context.Context, raw model.Raw) (model.Document, error) {
	return New(model.Fields{}).Normalize(ctx, raw)
}

// Normalize converts raw into a canonical document. raw is not modified. On
// error no partial document is returned.
func (n *Normalizer) Normalize(ctx context.Context, raw model.Raw) (model.Document, error) {
	doc := model.Document{
		Scan:  map[string]any{},
		Hosts: []model.Host{},
	}
	switch scan := raw["scan"].(type) {
	case map[string]any:
		doc.Scan = maps.Clone(scan)
	default:
		// not a mapping, nothing can be read from it
		if present(scan) {
			n.defaulted(ctx, "scan")
		}
	}

	rawHosts, found := raw["hosts"]
	if !found {
		return doc, nil
	}
	hosts, ok := asList(rawHosts)
	if !ok {
		return model.Document{}, &model.StructuralError{
			Field: "hosts",
			Got:   typeName(rawHosts),
		}
	}

	for i, h := range hosts {
		n.inc(model.Stats.IncHosts)
		rec, _ := h.(map[string]any)
		host, ok := n.host(ctx, rec)
		if !ok {
			n.inc(model.Stats.IncDroppedHosts)
			slog.DebugContext(ctx, "host record without identity dropped", "index", i)
			continue
		}
		doc.Hosts = append(doc.Hosts, host)
	}
	return doc, nil
}

func (n *Normalizer) host(ctx context.Context, rec map[string]any) (model.Host, bool) {
	ip, ok := n.text(rec, n.fields.HostIP)
	if !ok {
		return model.Host{}, false
	}
	ctx = log.ContextAttrs(ctx, slog.String("ip", ip))

	host := model.Host{
		IP:              ip,
		Hostname:        n.textOr(ctx, rec, n.fields.Hostname, "hostname", ip),
		OS:              n.textOr(ctx, rec, n.fields.OS, "os", model.DefaultOS),
		Services:        []model.Service{},
		Vulnerabilities: []model.Finding{},
	}

	if v, ok := lookup(rec, n.fields.Services); ok {
		list, ok := asList(v)
		if !ok {
			slog.DebugContext(ctx, "services is not a list, ignored", "type", typeName(v))
		}
		for _, s := range list {
			svc, ok := n.service(ctx, s)
			if !ok {
				continue
			}
			host.Services = append(host.Services, svc)
		}
	}

	if v, ok := lookup(rec, n.fields.Findings); ok {
		list, ok := asList(v)
		if !ok {
			slog.DebugContext(ctx, "findings is not a list, ignored", "type", typeName(v))
		}
		for _, f := range list {
			n.inc(model.Stats.IncFindings)
			frec, _ := f.(map[string]any)
			host.Vulnerabilities = append(host.Vulnerabilities, n.finding(ctx, frec))
		}
	}

	if len(host.Services) == 0 {
		host.Services = n.synthesize(ctx, host.Vulnerabilities)
	}
	return host, true
}

func (n *Normalizer) service(ctx context.Context, s any) (model.Service, bool) {
	rec, _ := s.(map[string]any)
	v, _ := lookup(rec, n.fields.ServicePort)
	port, ok := toPort(v)
	if !ok {
		n.inc(model.Stats.IncDroppedServices)
		slog.DebugContext(ctx, "service without valid port dropped", "port", v)
		return model.Service{}, false
	}
	return model.Service{
		Port:     port,
		Protocol: n.textOr(ctx, rec, n.fields.ServiceProto, "protocol", model.DefaultProtocol),
		Service:  n.textOr(ctx, rec, n.fields.ServiceName, "service", model.DefaultServiceName),
	}, true
}

func (n *Normalizer) finding(ctx context.Context, rec map[string]any) model.Finding {
	f := model.Finding{
		Name:           n.textOr(ctx, rec, n.fields.FindingName, "name", model.DefaultFindingName),
		Description:    n.textOr(ctx, rec, n.fields.Description, "", ""),
		Recommendation: n.textOr(ctx, rec, n.fields.Recommendation, "", ""),
	}

	if id, ok := lookup(rec, n.fields.PluginID); ok {
		f.PluginID = id
	}

	if sev, ok := lookup(rec, n.fields.Severity); ok {
		f.Severity = sev
		if _, known := severity.Lookup(sev); !known {
			n.inc(model.Stats.IncUnknownSeverities)
			slog.DebugContext(ctx, "unrecognized severity, counted as Low", "severity", sev)
		}
	} else {
		f.Severity = model.DefaultSeverityLabel
		n.defaulted(ctx, "severity")
	}

	f.CVSS = n.score(ctx, rec)

	if v, ok := lookup(rec, n.fields.FindingPort); ok {
		if port, ok := toPort(v); ok {
			f.Port = &port
		} else {
			n.inc(model.Stats.IncInvalidFindingPorts)
			slog.DebugContext(ctx, "invalid finding port, set to null", "port", v)
		}
	}
	return f
}

// score resolves the impact score, a vector is used only when no numeric
// field is present
func (n *Normalizer) score(ctx context.Context, rec map[string]any) float64 {
	if v, ok := lookup(rec, n.fields.CVSS); ok {
		return cvss.Clamp(v)
	}
	if v, ok := n.text(rec, n.fields.CVSSVector); ok {
		score, err := cvss.FromVector(v)
		if err == nil {
			return score
		}
		slog.DebugContext(ctx, "can't score CVSS vector", "vector", v, "error", err)
	}
	return 0
}

// synthesize derives one tcp service per distinct finding port
func (n *Normalizer) synthesize(ctx context.Context, findings []model.Finding) []model.Service {
	ret := []model.Service{}
	seen := make(map[int]struct{})
	for _, f := range findings {
		if f.Port == nil {
			continue
		}
		if _, ok := seen[*f.Port]; ok {
			continue
		}
		seen[*f.Port] = struct{}{}
		ret = append(ret, model.Service{
			Port:     *f.Port,
			Protocol: model.DefaultProtocol,
			Service:  model.DefaultServiceName,
		})
		n.inc(model.Stats.IncSynthesizedServices)
	}
	if len(ret) > 0 {
		slog.DebugContext(ctx, "services derived from finding ports", "count", len(ret))
	}
	return ret
}

func (n *Normalizer) text(rec map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || !present(v) {
			continue
		}
		if s, ok := scalarText(v); ok {
			return s, true
		}
	}
	return "", false
}

// textOr returns the first present text value or dflt. A non empty field
// name marks the default as a degradation worth counting.
func (n *Normalizer) textOr(ctx context.Context, rec map[string]any, keys []string, field, dflt string) string {
	if s, ok := n.text(rec, keys); ok {
		return s
	}
	if field != "" {
		n.defaulted(ctx, field)
	}
	return dflt
}

func (n *Normalizer) defaulted(ctx context.Context, field string) {
	if n.stats != nil {
		n.stats.IncDefaultedFields(1)
	}
	slog.DebugContext(ctx, "field defaulted", "field", field)
}

func (n *Normalizer) inc(f func(model.Stats)) {
	if n.stats != nil {
		f(n.stats)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case float64, float32, int, int64, int32:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
