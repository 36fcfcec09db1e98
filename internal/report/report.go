// Package report renders human readable summaries of risk graphs.
package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/CZERTAINLY/vuln-lens/internal/graph"
	"github.com/CZERTAINLY/vuln-lens/internal/severity"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary describes one processed document.
type Summary struct {
	Path  string
	Graph *graph.Graph
}

// Hosts returns the host nodes of g ordered by risk, highest first. Ties
// keep the graph order.
func Hosts(g *graph.Graph) []graph.Node {
	hosts := slices.Collect(g.NodesOf(graph.KindHost))
	slices.SortStableFunc(hosts, func(a, b graph.Node) int {
		return cmp.Compare(b.Risk, a.Risk)
	})
	return hosts
}

// Write prints the load summary followed by the host ranking table.
func (s Summary) Write(w io.Writer) error {
	hosts := Hosts(s.Graph)
	if _, err := fmt.Fprintf(w, "Loaded: %s\nHosts: %d\nGraph: %d nodes, %d edges\n",
		s.Path, len(hosts), s.Graph.NodeCount(), s.Graph.EdgeCount()); err != nil {
		return err
	}
	if len(hosts) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, Table(s.Graph, hosts).Render())
	return err
}

// Table renders hosts as a table.
func Table(g *graph.Graph, hosts []graph.Node) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"#", "Host", "Hostname", "OS", "Services", "Findings", "Max Severity", "Risk"})
	for i, h := range hosts {
		var services, findings int
		for c := range g.Children(h.Key) {
			switch c.Kind() {
			case graph.KindService:
				services++
			case graph.KindFinding:
				findings++
			}
		}
		tw.AppendRow(table.Row{
			i + 1,
			h.Key.IP,
			h.Hostname,
			text.WrapSoft(h.OS, 30),
			services,
			findings,
			severityText(h.Severity, findings),
			strconv.FormatFloat(h.Risk, 'f', 2, 64),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.SetCaption("top %d findings per host, weighted by severity", g.TopN())
	return tw
}

func severityText(sev, findings int) string {
	if findings == 0 {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", severity.Label(sev), sev)
}
