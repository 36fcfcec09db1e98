package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriteSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := service.NewWriteSink(&buf)
	require.NoError(t, s.Write(t.Context(), "a.json", []byte("a\n")))
	require.NoError(t, s.Write(t.Context(), "b.json", []byte("b\n")))
	require.Equal(t, "a\nb\n", buf.String())
}

func TestOSRootSink(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "out")
	s, err := service.NewOSRootSink(dir, ".graph.json")
	require.NoError(t, err)

	err = s.Write(t.Context(), "/scans/site-a/nessus.json", []byte("raw"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "scans_site-a_nessus.graph.json"))
	require.NoError(t, err)
	require.Equal(t, "raw", string(b))

	require.NoError(t, s.Close())
	require.Error(t, s.Close())
	require.Error(t, s.Write(t.Context(), "x.json", nil))
}

func TestSinks(t *testing.T) {
	t.Parallel()
	sinks, err := service.Sinks("", ".txt")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	require.IsType(t, service.WriteSink{}, sinks[0])

	sinks, err = service.Sinks(t.TempDir(), ".txt")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	_, ok := sinks[0].(model.SinkCloser)
	require.True(t, ok)
	service.CloseSinks(t.Context(), sinks)
}

func TestFileName(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		given string
		then  string
	}{
		{"nessus.json", "nessus.cdx.json"},
		{"/abs/dir/scan.yaml", "abs_dir_scan.cdx.json"},
		{"../up/scan.xml", "up_scan.cdx.json"},
		{"fstest://a/b.json", "fstest__a_b.cdx.json"},
		{"", "result.cdx.json"},
	}
	for _, tt := range testCases {
		t.Run(tt.given, func(t *testing.T) {
			require.Equal(t, tt.then, service.FileName(tt.given, ".cdx.json"))
		})
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()
	require.Equal(t, ".txt", service.Extension(model.FormatSummary))
	require.Equal(t, ".graph.json", service.Extension(model.FormatGraph))
	require.Equal(t, ".canonical.json", service.Extension(model.FormatCanonical))
	require.Equal(t, ".cdx.json", service.Extension(model.FormatCycloneDX))
	require.Equal(t, ".out", service.Extension("dot"))
}
