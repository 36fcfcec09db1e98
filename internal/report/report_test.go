package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/graph"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/report"
	"github.com/stretchr/testify/require"
)

func document() model.Document {
	return model.Document{
		Scan: map[string]any{"scope": "lab"},
		Hosts: []model.Host{
			{IP: "10.0.0.1", Hostname: "quiet", OS: "BSD"},
			{
				IP: "10.0.0.2", Hostname: "loud", OS: "Linux",
				Services: []model.Service{{Port: 80, Protocol: "tcp", Service: "http"}},
				Vulnerabilities: []model.Finding{
					{PluginID: "a", Name: "A", Severity: "Critical", CVSS: 10},
				},
			},
			{
				IP: "10.0.0.3", Hostname: "medium", OS: "Linux",
				Vulnerabilities: []model.Finding{
					{PluginID: "b", Name: "B", Severity: "Medium", CVSS: 5},
				},
			},
		},
	}
}

func TestHosts(t *testing.T) {
	t.Parallel()
	g := graph.Build(t.Context(), document(), 10)

	var ips []string
	for _, h := range report.Hosts(g) {
		ips = append(ips, h.Key.IP)
	}
	require.Equal(t, []string{"10.0.0.2", "10.0.0.3", "10.0.0.1"}, ips)
}

func TestSummary_Write(t *testing.T) {
	t.Parallel()
	g := graph.Build(t.Context(), document(), 3)

	var buf bytes.Buffer
	require.NoError(t, report.Summary{Path: "nessus.json", Graph: g}.Write(&buf))
	out := buf.String()

	require.True(t, strings.HasPrefix(out, "Loaded: nessus.json\nHosts: 3\nGraph: 7 nodes, 6 edges\n"), out)
	require.Contains(t, out, "Critical (4)")
	require.Contains(t, out, "20.00")
	require.Contains(t, out, "top 3 findings per host")
	require.Less(t, strings.Index(out, "loud"), strings.Index(out, "quiet"))
}

func TestSummary_Empty(t *testing.T) {
	t.Parallel()
	g := graph.Build(t.Context(), model.Document{}, 10)

	var buf bytes.Buffer
	require.NoError(t, report.Summary{Path: "-", Graph: g}.Write(&buf))
	require.Equal(t, "Loaded: -\nHosts: 0\nGraph: 1 nodes, 0 edges\n", buf.String())
}
