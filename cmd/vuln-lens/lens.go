package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/service"
	"github.com/CZERTAINLY/vuln-lens/internal/stats"
	"github.com/CZERTAINLY/vuln-lens/internal/walk"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagFormat     string
	flagTopN       int
	flagWeight     float64
	flagStats      bool
	flagOut        string
	flagCDXVersion string
	flagWorkers    int
)

func graphFlags(cmd *cobra.Command) {
	outputFlags(cmd)
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the result to a file instead of stdout")
}

func batchFlags(cmd *cobra.Command) {
	outputFlags(cmd)
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "directory for results, one file per document; stdout if empty")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "number of documents processed in parallel (batch.workers)")
}

func outputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagFormat, "format", "f", "", "output format: summary, graph, canonical or cyclonedx (output.format)")
	cmd.Flags().IntVar(&flagTopN, "top-n", 0, "number of riskiest findings summed into host risk (graph.host_top_n_findings)")
	cmd.Flags().Float64Var(&flagWeight, "weight", 0, "severity weight of finding risk (graph.severity_weight)")
	cmd.Flags().StringVar(&flagCDXVersion, "cdx-version", "1.6", "CycloneDX spec version of the cyclonedx format")
	cmd.Flags().BoolVar(&flagStats, "stats", false, "print normalization diagnostics to stderr")
}

// applyFlags overrides config values by the flags set on the command line
func applyFlags(cmd *cobra.Command, config *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		config.Output.Format = flagFormat
	}
	if flags.Changed("top-n") {
		config.Graph.HostTopNFindings = flagTopN
	}
	if flags.Changed("weight") {
		config.Graph.SeverityWeight = flagWeight
	}
	if flags.Changed("workers") {
		config.Batch.Workers = flagWorkers
	}
}

// Lens wires the pipeline with its inputs and outputs for the commands.
type Lens struct {
	config   model.Config
	counter  *stats.Stats
	pipeline *service.Pipeline
	stdin    io.Reader
}

func NewLens(config model.Config, counter *stats.Stats) (Lens, error) {
	if config.Version != 0 {
		return Lens{}, fmt.Errorf("config version %d is not supported, expected 0", config.Version)
	}
	pipeline := service.NewPipeline(config, counter).WithBOMVersion(flagCDXVersion)
	return Lens{
		config:   config,
		counter:  counter,
		pipeline: pipeline,
		stdin:    os.Stdin,
	}, nil
}

// Graph processes the documents named by args and renders them to w in
// argument order. The configured candidates are tried only for a single or
// missing argument, each of several arguments must exist.
func (l Lens) Graph(ctx context.Context, w io.Writer, args []string) error {
	if len(args) <= 1 {
		res, err := l.load(ctx, args)
		if err != nil {
			return err
		}
		return l.pipeline.Render(ctx, w, res)
	}

	results := make([]service.Result, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, l.config.Batch.Workers))
	for i, path := range args {
		g.Go(func() error {
			res, err := l.pipeline.Load(gctx, path)
			if err != nil {
				return pathError(path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		if err := l.pipeline.Render(ctx, w, res); err != nil {
			return err
		}
	}
	return nil
}

func (l Lens) load(ctx context.Context, args []string) (service.Result, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(l.stdin)
		if err != nil {
			return service.Result{}, fmt.Errorf("reading stdin: %w", err)
		}
		res, err := l.pipeline.Decode(ctx, "-", b)
		return res, pathError(res.Path, err)
	}
	candidates := append(append([]string(nil), args...), l.config.Input.Candidates...)
	res, err := l.pipeline.Load(ctx, candidates...)
	return res, pathError(res.Path, err)
}

// pathError prefixes err with the document path, if known
func pathError(path string, err error) error {
	if err == nil || path == "" {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}

// Batch walks dirs and stores one result per document in sinks.
func (l Lens) Batch(ctx context.Context, dirs []string, sinks []model.Sink) error {
	var roots []*os.Root
	defer func() {
		for _, r := range roots {
			_ = r.Close()
		}
	}()
	for _, d := range dirs {
		r, err := os.OpenRoot(d)
		if err != nil {
			return fmt.Errorf("opening %s: %w", d, err)
		}
		roots = append(roots, r)
	}

	batch := service.NewBatch(l.config.Batch.Workers, l.counter, l.pipeline)
	n, err := batch.Run(ctx, walk.Roots(ctx, l.counter, roots...), sinks...)
	slog.InfoContext(ctx, "batch finished", "documents", n, "failed", err != nil)
	return err
}

func (l Lens) printStats(w io.Writer) {
	for k, v := range l.counter.Stats() {
		fmt.Fprintf(w, "%s\t%s\n", k, v)
	}
}

func doGraph(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, &config)
	ctx := runContext(cmd.Context(), "graph")

	lens, err := NewLens(config, stats.New("vuln-lens"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	err = lens.Graph(ctx, &buf, args)
	if flagStats {
		lens.printStats(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	if flagOut == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(flagOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	slog.InfoContext(ctx, "result saved", "path", flagOut)
	return nil
}

func doBatch(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, &config)
	ctx := runContext(cmd.Context(), "batch")

	lens, err := NewLens(config, stats.New("vuln-lens"))
	if err != nil {
		return err
	}

	sinks, err := service.Sinks(flagOut, service.Extension(lens.pipeline.Format()))
	if err != nil {
		return err
	}
	defer service.CloseSinks(ctx, sinks)

	err = lens.Batch(ctx, args, sinks)
	if flagStats {
		lens.printStats(cmd.ErrOrStderr())
	}
	return err
}
