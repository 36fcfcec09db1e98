package walk_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"testing/fstest"
	"time"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/stats"
	"github.com/CZERTAINLY/vuln-lens/internal/walk"
	"github.com/stretchr/testify/require"
)

func TestFS_NilRoot(t *testing.T) {
	t.Parallel()
	counter := stats.New(t.Name())
	seq := walk.FS(t.Context(), counter, nil, "fstest://")
	// When root is nil, FS should return a nil iterator and not panic.
	require.Nil(t, any(seq))
	for _, value := range counter.Stats() {
		require.Equal(t, "0", value)
	}
}

func TestFS_CanceledContext(t *testing.T) {
	t.Parallel()
	root := fstest.MapFS{
		"a.json":   &fstest.MapFile{Data: []byte("{}"), Mode: 0o644},
		"b":        &fstest.MapFile{Mode: fs.ModeDir | 0o755},
		"b/b.yaml": &fstest.MapFile{Data: []byte("hosts: []"), Mode: 0o644},
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	counter := stats.New(t.Name())
	seq := walk.FS(ctx, counter, root, "fstest://")
	require.NotNil(t, seq)
	count := 0
	for range seq {
		count++
	}
	require.Equal(t, 0, count, "no entries should be yielded when context is canceled")
	for _, value := range counter.Stats() {
		require.Equal(t, "0", value)
	}
}

func TestFS(t *testing.T) {
	t.Parallel()
	now := time.Now()
	root := fstest.MapFS{
		"scan.json": &fstest.MapFile{
			Data:    []byte(`{"hosts":[]}`),
			Mode:    0o644,
			ModTime: now,
		},
		"README.md": &fstest.MapFile{
			Data:    []byte("# scans"),
			Mode:    0o644,
			ModTime: now,
		},
		"b": &fstest.MapFile{
			Mode:    0o755 | fs.ModeDir,
			ModTime: now,
		},
		"b/nmap.XML": &fstest.MapFile{
			Data:    []byte("<nmaprun/>"),
			Mode:    0o644,
			ModTime: now,
		},
		"b/scan.sock": &fstest.MapFile{
			Mode:    0o644 | fs.ModeSocket,
			ModTime: now,
		},
		".git": &fstest.MapFile{
			Mode:    0o755 | fs.ModeDir,
			ModTime: now,
		},
		".git/config.yaml": &fstest.MapFile{
			Data:    []byte("a: b"),
			Mode:    0o644,
			ModTime: now,
		},
	}

	actual := make([]then, 0, 2)
	counter := stats.New(t.Name())
	for entry, err := range walk.FS(t.Context(), counter, root, "fstest://") {
		actual = append(actual, testEntry(t, entry, err))
	}

	require.ElementsMatch(t,
		[]then{
			{path: filepath.Join("fstest://", "scan.json"), size: 12},
			{path: filepath.Join("fstest://", "b/nmap.XML"), size: 10},
		},
		actual,
	)

	// four files examined, the hidden directory is not entered
	// README.md and the socket are excluded
	for key, value := range counter.Stats() {
		var exp = "0"
		switch {
		case strings.HasSuffix(key, model.StatsFilesExcluded):
			exp = "2"
		case strings.HasSuffix(key, model.StatsFilesTotal):
			exp = "4"
		}
		require.Equal(t, exp, value, key)
	}
}

func TestRoots(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	tempdir := t.TempDir()
	root, err := os.OpenRoot(tempdir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	require.NoError(t, root.Mkdir("a", 0o755))
	f, err := root.Create("a/a.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"hosts":[]}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, root.Mkdir("a/X", 0o755))
	f, err = root.Create("a/X/X.json")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// simulate permission denied error on a/X
	require.NoError(t, os.Chmod(filepath.Join(tempdir, "a", "X"), 0o000))
	t.Cleanup(func() {
		require.NoError(t, os.Chmod(filepath.Join(tempdir, "a", "X"), 0o755))
	})

	counter := stats.New(t.Name())
	actual := make([]then, 0, 2)
	for entry, err := range walk.Roots(t.Context(), counter, root) {
		actual = append(actual, testEntry(t, entry, err))
	}

	require.ElementsMatch(t,
		[]then{
			{path: filepath.Join(tempdir, "a/a.json"), size: 13},
			{path: filepath.Join(tempdir, "a/X"), err: &fs.PathError{
				Op:   "openat",
				Path: "a/X",
				Err:  syscall.EACCES,
			}},
		},
		actual,
	)
}

func TestIsDocument(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		given string
		then  bool
	}{
		{"scan.json", true},
		{"dir/scan.YAML", true},
		{"scan.yml", true},
		{"nmap.xml", true},
		{"scan.json.bak", false},
		{"json", false},
		{"", false},
	}
	for _, tt := range testCases {
		t.Run(tt.given, func(t *testing.T) {
			require.Equal(t, tt.then, walk.IsDocument(tt.given))
		})
	}
}

type then struct {
	path string
	size int64
	err  error
}

func testEntry(t *testing.T, entry model.Entry, err error) then {
	t.Helper()
	if err != nil {
		return then{
			path: entry.Path(),
			err:  err,
		}
	}

	f, openErr := entry.Open()
	require.NoError(t, openErr)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})
	b, err := io.ReadAll(f)
	require.NoError(t, err)

	info, err := entry.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(len(b)), info.Size())

	return then{path: entry.Path(), size: int64(len(b))}
}
