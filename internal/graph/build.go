package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/cvss"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/risk"
	"github.com/CZERTAINLY/vuln-lens/internal/severity"
)

// Builder turns canonical documents into graphs. It never fails, missing
// fields of hand made documents degrade to defaults. The zero value uses the
// default scorer.
type Builder struct {
	scorer risk.Scorer
}

func NewBuilder(scorer risk.Scorer) Builder {
	return Builder{scorer: risk.New(scorer.Weight, scorer.TopN)}
}

// Build builds the graph with the default weight and the given host window.
func Build(ctx context.Context, doc model.Document, topN int) *Graph {
	return NewBuilder(risk.New(0, topN)).Build(ctx, doc)
}

// Build returns a new graph for doc. Hosts sharing an ip, and services or
// findings sharing their identity, collapse into one node. Hosts and services
// keep the attributes of their first record. Duplicate findings resolve to the
// same record whatever their order, see preferred. Host risk and severity are
// aggregated over the distinct findings of the host once all records are
// added, so they do not depend on record order either.
func (b Builder) Build(ctx context.Context, doc model.Document) *Graph {
	b.scorer = risk.New(b.scorer.Weight, b.scorer.TopN)
	g := newGraph(b.scorer.TopN)

	scope := doc.Scope()
	subnet := SubnetKey(scope)
	g.upsert(Node{Key: subnet, Label: scope})

	findings := make(map[Key][]*Node)
	for _, h := range doc.Hosts {
		ip := nonEmpty(h.IP, model.UnknownIP)
		host, _ := g.upsert(Node{
			Key:      HostKey(ip),
			Hostname: nonEmpty(h.Hostname, ip),
			OS:       nonEmpty(h.OS, model.DefaultOS),
		})
		g.link(subnet, host.Key)

		for _, s := range h.Services {
			svc := b.service(ip, s)
			g.upsert(svc)
			g.link(host.Key, svc.Key)
		}

		for _, f := range h.Vulnerabilities {
			fin := b.finding(ip, f)
			n, added := g.upsert(fin)
			if added {
				findings[host.Key] = append(findings[host.Key], n)
			} else if preferred(fin, *n) {
				*n = fin
			}
			g.link(host.Key, fin.Key)
		}
	}

	for _, n := range g.nodes {
		if n.Kind() == KindHost {
			b.aggregate(n, findings[n.Key])
		}
	}

	slog.DebugContext(ctx, "graph built",
		"scope", scope,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
	)
	return g
}

func (b Builder) service(ip string, s model.Service) Node {
	proto := nonEmpty(s.Protocol, model.DefaultProtocol)
	name := nonEmpty(s.Service, model.DefaultServiceName)
	return Node{
		Key:     ServiceKey(ip, proto, s.Port),
		Service: name,
		Label:   fmt.Sprintf("%s\n%s %s/%d", ip, name, proto, s.Port),
	}
}

func (b Builder) finding(ip string, f model.Finding) Node {
	label := f.Severity
	if label == nil {
		label = model.DefaultSeverityLabel
	}
	sev := severity.Ordinal(label)
	score := cvss.Clamp(f.CVSS)
	r := b.scorer.Finding(sev, score)
	name := nonEmpty(f.Name, model.DefaultFindingName)

	port := model.UnknownPortPlaceholder
	if f.Port != nil {
		port = strconv.Itoa(*f.Port)
	}

	return Node{
		Key:           FindingKey(ip, pluginText(f.PluginID), f.Port),
		Name:          name,
		Severity:      sev,
		Risk:          r,
		SeverityLabel: label,
		CVSS:          score,
		PluginID:      f.PluginID,
		Port:          f.Port,
		Label: strings.Join([]string{
			ip,
			name,
			fmt.Sprintf("Severity: %v (norm %d)", label, sev),
			"CVSS: " + decimal(score),
			"Risk: " + decimal(r),
			"Port: " + port,
		}, "\n"),
	}
}

func (b Builder) aggregate(host *Node, findings []*Node) {
	risks := make([]float64, 0, len(findings))
	ords := make([]int, 0, len(findings))
	for _, f := range findings {
		risks = append(risks, f.Risk)
		ords = append(ords, f.Severity)
	}
	host.Risk = b.scorer.Host(risks)
	host.Severity = risk.MaxSeverity(ords)
	host.Label = strings.Join([]string{
		host.Key.IP,
		host.Hostname,
		host.OS,
		fmt.Sprintf("Host Risk (top %d): %s", b.scorer.TopN, decimal(host.Risk)),
		fmt.Sprintf("Max Severity (norm): %d", host.Severity),
	}, "\n")
}

// preferred reports whether finding a replaces b of the same identity: the
// higher risk wins, ties go to the higher severity, then to the smaller
// label so that record order never decides.
func preferred(a, b Node) bool {
	if a.Risk != b.Risk {
		return a.Risk > b.Risk
	}
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	return a.Label < b.Label
}

func pluginText(id any) string {
	switch x := id.(type) {
	case nil:
		return model.UnknownPluginID
	case string:
		return nonEmpty(x, model.UnknownPluginID)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// decimal formats f with at least one fractional digit, 15 -> 15.0
func decimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func nonEmpty(s, dflt string) string {
	if s == "" {
		return dflt
	}
	return s
}
