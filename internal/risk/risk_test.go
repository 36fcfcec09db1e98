package risk_test

import (
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/risk"

	"github.com/stretchr/testify/require"
)

func TestFindingRisk(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		sev      int
		cvss     float64
		then     float64
	}{
		{scenario: "zero", sev: 0, cvss: 0.0, then: 0.0},
		{scenario: "critical", sev: 4, cvss: 9.8, then: 19.8},
		{scenario: "cvss is clamped first", sev: 2, cvss: 10.3, then: 15.0},
		{scenario: "negative cvss", sev: 1, cvss: -3, then: 2.5},
		{scenario: "severity is clamped", sev: 7, cvss: 1, then: 11.0},
		{scenario: "rounding", sev: 1, cvss: 3.333, then: 5.83},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.then, risk.FindingRisk(tc.sev, tc.cvss), 1e-9)
		})
	}
}

func TestFinding_Monotonic(t *testing.T) {
	t.Parallel()
	for _, s := range []risk.Scorer{{}, risk.New(1, 3), risk.New(0.1, 1)} {
		for sev := 0; sev < 4; sev++ {
			for score := 0.0; score <= 10.0; score += 0.5 {
				require.Greater(t, s.Finding(sev+1, score), s.Finding(sev, score))
				if score < 10 {
					require.Greater(t, s.Finding(sev, score+0.5), s.Finding(sev, score))
				}
			}
		}
	}
}

func TestHostRisk(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    []float64
		topN     int
		then     float64
	}{
		{scenario: "top three", given: []float64{30, 25, 20, 15, 10, 5}, topN: 3, then: 75.0},
		{scenario: "unsorted input", given: []float64{5, 20, 30, 10, 25, 15}, topN: 3, then: 75.0},
		{scenario: "window larger than input", given: []float64{1.25, 2.5}, topN: 10, then: 3.75},
		{scenario: "no findings", given: nil, topN: 10, then: 0.0},
		{scenario: "non positive window uses default", given: []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, topN: 0, then: 10.0},
		{scenario: "rounding", given: []float64{1.111, 2.222}, topN: 2, then: 3.33},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			var orig []float64
			if tc.given != nil {
				orig = append([]float64{}, tc.given...)
			}
			require.InDelta(t, tc.then, risk.HostRisk(tc.given, tc.topN), 1e-9)
			require.Equal(t, orig, tc.given, "input must not be modified")
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	s := risk.New(-1, -5)
	require.Equal(t, model.DefaultSeverityWeight, s.Weight)
	require.Equal(t, model.DefaultHostTopN, s.TopN)

	s = risk.FromConfig(model.Graph{HostTopNFindings: 3, SeverityWeight: 4})
	require.Equal(t, 4.0, s.Weight)
	require.Equal(t, 3, s.TopN)
	require.InDelta(t, 17.0, s.Finding(4, 1), 1e-9)
}

func TestMaxSeverity(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, risk.MaxSeverity(nil))
	require.Equal(t, 3, risk.MaxSeverity([]int{1, 3, 2}))
	require.Equal(t, 4, risk.MaxSeverity([]int{9}))
}
