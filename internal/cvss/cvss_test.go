package cvss_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/cvss"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    any
		then     float64
	}{
		{scenario: "below range", given: -0.3, then: 0.0},
		{scenario: "above range", given: 10.3, then: 10.0},
		{scenario: "not a number", given: "abc", then: 0.0},
		{scenario: "nil", given: nil, then: 0.0},
		{scenario: "empty string", given: "", then: 0.0},
		{scenario: "numeric string", given: "7.5", then: 7.5},
		{scenario: "numeric string with spaces", given: " 9.8 ", then: 9.8},
		{scenario: "int", given: 5, then: 5.0},
		{scenario: "negative int", given: -4, then: 0.0},
		{scenario: "json number", given: json.Number("6.1"), then: 6.1},
		{scenario: "upper bound", given: 10.0, then: 10.0},
		{scenario: "lower bound", given: 0.0, then: 0.0},
		{scenario: "nan", given: math.NaN(), then: 0.0},
		{scenario: "infinity", given: math.Inf(1), then: 10.0},
		{scenario: "infinity string", given: "-Inf", then: 0.0},
		{scenario: "bool", given: true, then: 1.0},
		{scenario: "map", given: map[string]any{"score": 5}, then: 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			got := cvss.Clamp(tc.given)
			require.InDelta(t, tc.then, got, 1e-9)
			require.GreaterOrEqual(t, got, cvss.Min)
			require.LessOrEqual(t, got, cvss.Max)
			// idempotence
			require.Equal(t, got, cvss.Clamp(got))
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	f, ok := cvss.Parse("4.3")
	require.True(t, ok)
	require.InDelta(t, 4.3, f, 1e-9)

	f, ok = cvss.Parse("n/a")
	require.False(t, ok)
	require.Zero(t, f)

	f, ok = cvss.Parse(nil)
	require.False(t, ok)
	require.Zero(t, f)
}

func TestFromVector(t *testing.T) {
	t.Parallel()
	type then struct {
		score float64
		err   bool
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{
			scenario: "cvss 3.1 critical",
			given:    "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			then:     then{score: 9.8},
		},
		{
			scenario: "cvss 3.0 medium",
			given:    "CVSS:3.0/AV:N/AC:L/PR:N/UI:R/S:U/C:L/I:L/A:N",
			then:     then{score: 5.4},
		},
		{
			scenario: "cvss 2.0",
			given:    "AV:N/AC:L/Au:N/C:P/I:P/A:P",
			then:     then{score: 7.5},
		},
		{
			scenario: "cvss 4.0",
			given:    "CVSS:4.0/AV:N/AC:L/AT:N/PR:N/UI:N/VC:H/VI:H/VA:H/SC:N/SI:N/SA:N",
			then:     then{score: 9.3},
		},
		{
			scenario: "malformed 3.1",
			given:    "CVSS:3.1/AV:X",
			then:     then{err: true},
		},
		{
			scenario: "garbage",
			given:    "high",
			then:     then{err: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			got, err := cvss.FromVector(tc.given)
			if tc.then.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tc.then.score, got, 1e-9)
		})
	}

	_, err := cvss.FromVector("bogus")
	require.ErrorIs(t, err, cvss.ErrVector)
}
