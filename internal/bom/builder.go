// Package bom exports risk graphs as CycloneDX documents: hosts and services
// become components, findings become vulnerabilities with ratings.
package bom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/CZERTAINLY/vuln-lens/internal/graph"
	"github.com/CZERTAINLY/vuln-lens/internal/severity"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
)

var programVersion string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		programVersion = "unknown"
	} else {
		programVersion = info.Main.Version
	}
}

// Property names used on components and vulnerabilities.
const (
	PropIP          = "vuln-lens:ip"
	PropOS          = "vuln-lens:os"
	PropProtocol    = "vuln-lens:protocol"
	PropPort        = "vuln-lens:port"
	PropRisk        = "vuln-lens:risk_score"
	PropMaxSeverity = "vuln-lens:max_severity"
	PropScope       = "vuln-lens:scope"
)

// DefaultVersion is the CycloneDX spec version used when none is given.
const DefaultVersion = "1.6"

// Builder collects graphs into a single CycloneDX BOM. Components and
// vulnerabilities are deduplicated by their node id, the first one wins and
// later ones only add their evidence location.
type Builder struct {
	version         cdx.SpecVersion
	schema          string
	order           []string
	components      map[string]*cdx.Component
	vulnerabilities []*cdx.Vulnerability
	vulnIndex       map[string]*cdx.Vulnerability
	dependencies    map[string][]string
	properties      []cdx.Property
}

func NewBuilder(version string) (*Builder, error) {
	var versions = map[string]cdx.SpecVersion{
		"1.5": cdx.SpecVersion1_5,
		"1.6": cdx.SpecVersion1_6,
	}
	var schemas = map[cdx.SpecVersion]string{
		cdx.SpecVersion1_5: "http://cyclonedx.org/schema/bom-1.5.schema.json",
		cdx.SpecVersion1_6: "https://cyclonedx.org/schema/bom-1.6.schema.json",
	}

	if version == "" {
		version = DefaultVersion
	}
	v, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("unsupported cyclonedx spec version %s", version)
	}
	schema, ok := schemas[v]
	if !ok {
		return nil, fmt.Errorf("unknown json schema for version %s", v)
	}

	return &Builder{
		version:      v,
		schema:       schema,
		components:   make(map[string]*cdx.Component),
		vulnIndex:    make(map[string]*cdx.Vulnerability),
		dependencies: make(map[string][]string),
		properties:   []cdx.Property{},
	}, nil
}

// AppendGraph adds the nodes of g. location is recorded as evidence of every
// component, usually the path of the scan document.
func (b *Builder) AppendGraph(ctx context.Context, g *graph.Graph, location string) *Builder {
	for subnet := range g.NodesOf(graph.KindSubnet) {
		b.addProperty(PropScope, subnet.Label)
	}

	for host := range g.NodesOf(graph.KindHost) {
		ref := host.Key.String()
		b.addComponent(ctx, cdx.Component{
			BOMRef: ref,
			Type:   cdx.ComponentTypeDevice,
			Name:   host.Hostname,
			Properties: &[]cdx.Property{
				{Name: PropIP, Value: host.Key.IP},
				{Name: PropOS, Value: host.OS},
				{Name: PropRisk, Value: strconv.FormatFloat(host.Risk, 'f', -1, 64)},
				{Name: PropMaxSeverity, Value: severity.Label(host.Severity)},
			},
		}, location)

		services := make(map[int]string)
		for child := range g.Children(host.Key) {
			switch child.Kind() {
			case graph.KindService:
				svcRef := child.Key.String()
				b.addComponent(ctx, cdx.Component{
					BOMRef: svcRef,
					Type:   cdx.ComponentTypeApplication,
					Name:   child.Service,
					Properties: &[]cdx.Property{
						{Name: PropIP, Value: child.Key.IP},
						{Name: PropProtocol, Value: child.Key.Protocol},
						{Name: PropPort, Value: strconv.Itoa(child.Key.Port)},
					},
				}, location)
				b.addDependency(ref, svcRef)
				if _, ok := services[child.Key.Port]; !ok {
					services[child.Key.Port] = svcRef
				}
			case graph.KindFinding:
				affected := ref
				if child.Port != nil {
					if svcRef, ok := services[*child.Port]; ok {
						affected = svcRef
					}
				}
				b.addVulnerability(ctx, child, affected)
			}
		}
	}
	return b
}

// BOM returns a cdx.BOM based on the data inside the Builder
func (b *Builder) BOM() cdx.BOM {
	components := make([]cdx.Component, 0, len(b.order))
	for _, ref := range b.order {
		components = append(components, *b.components[ref])
	}

	dependencies := make([]cdx.Dependency, 0, len(b.dependencies))
	for _, ref := range slices.Sorted(maps.Keys(b.dependencies)) {
		deps := slices.Clone(b.dependencies[ref])
		dependencies = append(dependencies, cdx.Dependency{
			Ref:          ref,
			Dependencies: &deps,
		})
	}

	vulnerabilities := make([]cdx.Vulnerability, 0, len(b.vulnerabilities))
	for _, v := range b.vulnerabilities {
		vulnerabilities = append(vulnerabilities, *v)
	}

	properties := slices.Clone(b.properties)
	return cdx.BOM{
		JSONSchema:   b.schema,
		BOMFormat:    cdx.BOMFormat,
		SpecVersion:  b.version,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Lifecycles: &[]cdx.Lifecycle{
				{Phase: cdx.LifecyclePhaseOperations},
			},
			// must not be nil, the encoder fails on empty tools otherwise
			Component: &cdx.Component{
				Type:    cdx.ComponentTypeApplication,
				Name:    "vuln-lens",
				Version: programVersion,
				Manufacturer: &cdx.OrganizationalEntity{
					Name: "CZERTAINLY",
					URL: &[]string{
						"https://www.czertainly.com",
					},
				},
			},
		},
		Components:      &components,
		Dependencies:    &dependencies,
		Vulnerabilities: &vulnerabilities,
		Properties:      &properties,
	}
}

// AsJSON encodes the BOM into JSON format
func (b *Builder) AsJSON(w io.Writer) error {
	bom := b.BOM()
	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}

func (b *Builder) addComponent(ctx context.Context, c cdx.Component, location string) {
	if stored, ok := b.components[c.BOMRef]; ok {
		slog.DebugContext(ctx, "component already stored", "ref", c.BOMRef)
		addEvidenceLocation(stored, location)
		return
	}
	addEvidenceLocation(&c, location)
	b.components[c.BOMRef] = &c
	b.order = append(b.order, c.BOMRef)
}

func (b *Builder) addDependency(ref, on string) {
	if slices.Contains(b.dependencies[ref], on) {
		return
	}
	b.dependencies[ref] = append(b.dependencies[ref], on)
}

func (b *Builder) addProperty(name, value string) {
	p := cdx.Property{Name: name, Value: value}
	if !slices.Contains(b.properties, p) {
		b.properties = append(b.properties, p)
	}
}

func (b *Builder) addVulnerability(ctx context.Context, n graph.Node, affected string) {
	ref := n.Key.String()
	if _, ok := b.vulnIndex[ref]; ok {
		slog.DebugContext(ctx, "vulnerability already stored", "ref", ref)
		return
	}
	cvss, risk := n.CVSS, n.Risk
	v := &cdx.Vulnerability{
		BOMRef:      ref,
		ID:          n.Key.PluginID,
		Description: n.Name,
		Ratings: &[]cdx.VulnerabilityRating{
			{
				Score:         &cvss,
				Severity:      Severity(n.Severity),
				Method:        cdx.ScoringMethodOther,
				Justification: fmt.Sprintf("reported severity %v", n.SeverityLabel),
			},
		},
		Affects: &[]cdx.Affects{{Ref: affected}},
		Properties: &[]cdx.Property{
			{Name: PropRisk, Value: strconv.FormatFloat(risk, 'f', -1, 64)},
		},
	}
	if n.Port != nil {
		*v.Properties = append(*v.Properties, cdx.Property{Name: PropPort, Value: strconv.Itoa(*n.Port)})
	}
	b.vulnerabilities = append(b.vulnerabilities, v)
	b.vulnIndex[ref] = v
}

// Severity maps a severity ordinal onto the CycloneDX scale.
func Severity(ord int) cdx.Severity {
	switch ord {
	case severity.Informational:
		return cdx.SeverityInfo
	case severity.Low:
		return cdx.SeverityLow
	case severity.Medium:
		return cdx.SeverityMedium
	case severity.High:
		return cdx.SeverityHigh
	case severity.Critical:
		return cdx.SeverityCritical
	default:
		return cdx.SeverityUnknown
	}
}

// Add (append) an evidence.occurrence location if non-empty.
// ensures location is present only once
func addEvidenceLocation(c *cdx.Component, locations ...string) {
	if c == nil {
		return
	}
	locations = slices.DeleteFunc(locations, func(s string) bool { return s == "" })
	if len(locations) == 0 {
		return
	}
	if c.Evidence == nil {
		c.Evidence = &cdx.Evidence{}
	}
	if c.Evidence.Occurrences == nil {
		c.Evidence.Occurrences = &[]cdx.EvidenceOccurrence{}
	}

	stored := make(map[string]struct{})
	for _, occ := range *c.Evidence.Occurrences {
		stored[occ.Location] = struct{}{}
	}
	for _, loc := range locations {
		stored[loc] = struct{}{}
	}

	occurences := make([]cdx.EvidenceOccurrence, 0, len(stored))
	for _, loc := range slices.Sorted(maps.Keys(stored)) {
		occurences = append(occurences, cdx.EvidenceOccurrence{
			Location: loc,
		})
	}

	c.Evidence.Occurrences = &occurences
}
