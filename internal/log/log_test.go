package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		scenario string
		given    []slog.Attr
		then     string
	}{
		{
			scenario: "no attrs",
			given:    nil,
			then:     `{"level":"INFO","msg":"document loaded","hosts":3}`,
		},
		{
			scenario: "empty attrs",
			given:    []slog.Attr{},
			then:     `{"level":"INFO","msg":"document loaded","hosts":3}`,
		},
		{
			scenario: "path",
			given: []slog.Attr{
				slog.String("path", "nessus.json"),
			},
			then: `{"level":"INFO","msg":"document loaded","hosts":3,"path":"nessus.json"}`,
		},
		{
			scenario: "run group",
			given: []slog.Attr{
				slog.Group("vuln-lens", slog.String("cmd", "graph"), slog.Int("pid", 42)),
			},
			then: `{"level":"INFO","msg":"document loaded","hosts":3,"vuln-lens":{"cmd":"graph","pid":42}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
				Level: slog.LevelDebug,
				ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			})
			ctxHandler := log.NewContextHandler(base)
			logger := slog.New(ctxHandler)

			ctx := log.ContextAttrs(t.Context(), tt.given...)
			logger.InfoContext(ctx, "document loaded", slog.Int("hosts", 3))
			require.JSONEq(t, tt.then, buf.String())
		})
	}
}

func TestContextAttrs_Nested(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	logger := slog.New(log.NewContextHandler(base)).With("run", "r1")

	ctx := log.ContextAttrs(t.Context(), slog.String("path", "scan.json"))
	ctx = log.ContextAttrs(ctx, slog.String("ip", "10.0.0.1"))
	logger.InfoContext(ctx, "host dropped")

	require.JSONEq(t, `{"level":"INFO","msg":"host dropped","run":"r1","path":"scan.json","ip":"10.0.0.1"}`, buf.String())
}

func TestNewWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.NewWriter(&buf, false)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "k=v")

	buf.Reset()
	verbose := log.NewWriter(&buf, true)
	verbose.Debug("debug line")
	require.Contains(t, buf.String(), "debug line")
}

func TestNew(t *testing.T) {
	t.Parallel()
	require.NotNil(t, log.New(true))
	require.NotNil(t, log.New(false))
}
