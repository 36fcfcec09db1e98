package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
)

//go:generate mockgen -destination=./mock/sink.go -package=mock github.com/CZERTAINLY/vuln-lens/internal/model Sink

// Sinks returns the sinks for the output directory dir, stdout when dir is
// empty. ext is the file extension used for results written to dir.
func Sinks(dir, ext string) ([]model.Sink, error) {
	if dir == "" {
		return []model.Sink{NewWriteSink(os.Stdout)}, nil
	}
	s, err := NewOSRootSink(dir, ext)
	if err != nil {
		return nil, err
	}
	return []model.Sink{s}, nil
}

// CloseSinks closes every sink implementing model.SinkCloser.
func CloseSinks(ctx context.Context, sinks []model.Sink) {
	for _, sink := range sinks {
		if closer, ok := sink.(model.SinkCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing sink have failed", "error", err)
			}
		}
	}
}

func write(ctx context.Context, sinks []model.Sink, name string, raw []byte) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, name, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteSink writes every result to w, one after another.
type WriteSink struct {
	w io.Writer
}

func NewWriteSink(w io.Writer) WriteSink {
	return WriteSink{w: w}
}

func (s WriteSink) Write(_ context.Context, _ string, raw []byte) error {
	if s.w == nil {
		s.w = os.Stdout
	}
	_, err := s.w.Write(raw)
	return err
}

// OSRootSink stores every result as a file in a directory. The file name is
// derived from the document path, so results of one run do not collide.
type OSRootSink struct {
	root *os.Root
	ext  string
}

func NewOSRootSink(path, ext string) (*OSRootSink, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &OSRootSink{root: root, ext: ext}, nil
}

func (s *OSRootSink) Write(ctx context.Context, name string, b []byte) error {
	if s.root == nil {
		return errors.New("root already closed")
	}

	path := FileName(name, s.ext)
	f, err := s.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating result %s: %w", path, err)
	}
	_, err = f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("saving result %s: %w", path, err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing result %s: %w", path, err)
	}
	slog.InfoContext(ctx, "result saved", "path", filepath.Join(s.root.Name(), path))
	return nil
}

func (s *OSRootSink) Close() error {
	if s.root == nil {
		return errors.New("sink already closed")
	}
	err := s.root.Close()
	s.root = nil
	return err
}

// FileName flattens a document path into a single file name with ext, for
// example /scans/a/nessus.json -> scans_a_nessus.graph.json for
// ext ".graph.json".
func FileName(name, ext string) string {
	name = filepath.ToSlash(filepath.Clean(name))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Trim(name, "/.")
	name = strings.NewReplacer("/", "_", ":", "_", "..", "_").Replace(name)
	if name == "" {
		name = "result"
	}
	return name + ext
}

// Extension returns the result file extension of an output format.
func Extension(format string) string {
	switch format {
	case model.FormatSummary:
		return ".txt"
	case model.FormatGraph:
		return ".graph.json"
	case model.FormatCanonical:
		return ".canonical.json"
	case model.FormatCycloneDX:
		return ".cdx.json"
	default:
		return ".out"
	}
}
