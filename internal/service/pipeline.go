package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CZERTAINLY/vuln-lens/internal/bom"
	"github.com/CZERTAINLY/vuln-lens/internal/graph"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/normalize"
	"github.com/CZERTAINLY/vuln-lens/internal/report"
	"github.com/CZERTAINLY/vuln-lens/internal/risk"
	"github.com/CZERTAINLY/vuln-lens/internal/source"
)

// ErrUnknownFormat is returned by Render for an output format it does not
// know.
var ErrUnknownFormat = errors.New("unknown output format")

// Result of one processed document.
type Result struct {
	Path     string
	Document model.Document
	Graph    *graph.Graph
}

// Pipeline chains loading, normalization, graph building and rendering of
// scan documents. It is safe for concurrent use.
type Pipeline struct {
	loader     source.Loader
	normalizer *normalize.Normalizer
	builder    graph.Builder
	format     string
	bomVersion string
}

// NewPipeline configures a pipeline from cfg. counter receives the
// normalization diagnostics, it may be nil.
func NewPipeline(cfg model.Config, counter model.Stats) *Pipeline {
	n := normalize.New(cfg.Normalize.Fields)
	if counter != nil {
		n = n.WithStats(counter)
	}
	format := cfg.Output.Format
	if format == "" {
		format = model.FormatSummary
	}
	return &Pipeline{
		loader:     source.Loader{Schema: cfg.Input.Schema},
		normalizer: n,
		builder:    graph.NewBuilder(risk.FromConfig(cfg.Graph)),
		format:     format,
		bomVersion: bom.DefaultVersion,
	}
}

func (p *Pipeline) WithFormat(format string) *Pipeline {
	ret := *p
	ret.format = format
	return &ret
}

func (p *Pipeline) WithBOMVersion(version string) *Pipeline {
	ret := *p
	ret.bomVersion = version
	return &ret
}

func (p *Pipeline) Format() string {
	return p.format
}

// Load processes the first existing candidate.
func (p *Pipeline) Load(ctx context.Context, candidates ...string) (Result, error) {
	path, raw, err := p.loader.Load(ctx, candidates...)
	if err != nil {
		return Result{Path: path}, err
	}
	return p.Convert(ctx, path, raw)
}

// Decode processes the content of a document, path selects its format.
func (p *Pipeline) Decode(ctx context.Context, path string, b []byte) (Result, error) {
	raw, err := p.loader.Decode(ctx, path, b)
	if err != nil {
		return Result{Path: path}, err
	}
	return p.Convert(ctx, path, raw)
}

// Convert normalizes raw and builds its graph. Errors do not name the path,
// callers report it.
func (p *Pipeline) Convert(ctx context.Context, path string, raw model.Raw) (Result, error) {
	doc, err := p.normalizer.Normalize(ctx, raw)
	if err != nil {
		return Result{Path: path}, err
	}
	g := p.builder.Build(ctx, doc)
	slog.DebugContext(ctx, "document processed", "path", path, "hosts", len(doc.Hosts))
	return Result{Path: path, Document: doc, Graph: g}, nil
}

// Render writes res to w in the pipeline format.
func (p *Pipeline) Render(ctx context.Context, w io.Writer, res Result) error {
	switch p.format {
	case model.FormatSummary:
		return report.Summary{Path: res.Path, Graph: res.Graph}.Write(w)
	case model.FormatGraph:
		return encode(w, res.Graph)
	case model.FormatCanonical:
		return encode(w, res.Document)
	case model.FormatCycloneDX:
		b, err := bom.NewBuilder(p.bomVersion)
		if err != nil {
			return err
		}
		return b.AppendGraph(ctx, res.Graph, res.Path).AsJSON(w)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, p.format)
	}
}

// Process implements Processor: it decodes, converts and renders b.
func (p *Pipeline) Process(ctx context.Context, b []byte, path string) ([]byte, error) {
	res, err := p.Decode(ctx, path, b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.Render(ctx, &buf, res); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
