// Package walk finds scan documents below directory trees.
package walk

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/stats"
)

// Extensions of the files FS reports. Anything else is counted as excluded.
var Extensions = []string{".json", ".yaml", ".yml", ".xml"}

// IsDocument reports whether name looks like a scan document.
func IsDocument(name string) bool {
	return slices.Contains(Extensions, strings.ToLower(path.Ext(name)))
}

// Roots is a convenience wrapper around FS for os.Root. See FS for details.
func Roots(ctx context.Context, counter *stats.Stats, roots ...*os.Root) iter.Seq2[model.Entry, error] {
	return func(yield func(model.Entry, error) bool) {
		for _, root := range roots {
			for entry, err := range FS(ctx, counter, root.FS(), root.Name()) {
				if !yield(entry, err) {
					return
				}
			}
		}
	}
}

// FS recursively walks root and returns a handle for every regular file with
// one of the Extensions, or an error if file information retrieval fails.
// Each Entry's Path() is prefixed with name, usually the absolute path of
// the root directory. Hidden directories are skipped and symlinks are not
// followed.
func FS(ctx context.Context, counter *stats.Stats, root fs.FS, name string) iter.Seq2[model.Entry, error] {
	if root == nil {
		slog.WarnContext(ctx, "root is nil: not iterating")
		return nil
	}

	return func(yield func(model.Entry, error) bool) {
		fn := func(p string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			entry := fsEntry{
				root:    root,
				abspath: filepath.Join(name, p),
				path:    p,
			}
			if err != nil {
				counter.IncErrFiles()
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if p != "." && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}

			counter.IncFiles()
			info, err := d.Info()
			if err != nil {
				counter.IncErrFiles()
				entry.infoErr = err
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			if !info.Mode().IsRegular() || !IsDocument(p) {
				counter.IncExcludedFiles()
				return nil
			}
			entry.info = info
			if !yield(entry, nil) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

// fsEntry implements model.Entry on top of fs.FS
type fsEntry struct {
	root    fs.FS
	abspath string
	path    string
	info    fs.FileInfo
	infoErr error
}

func (e fsEntry) Path() string {
	return e.abspath
}

func (e fsEntry) Open() (io.ReadCloser, error) {
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return e.root.Open(e.path)
}

func (e fsEntry) Stat() (fs.FileInfo, error) {
	return e.info, e.infoErr
}
