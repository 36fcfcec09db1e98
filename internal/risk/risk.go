// Package risk scores findings and aggregates them per host.
package risk

import (
	"cmp"
	"math"
	"slices"

	"github.com/CZERTAINLY/vuln-lens/internal/cvss"
	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/severity"
)

// Scorer computes finding risk as cvss + severity*Weight and host risk as
// the sum of the TopN highest finding risks. The zero value uses the
// defaults.
type Scorer struct {
	Weight float64
	TopN   int
}

// New returns a Scorer, non positive arguments are replaced by defaults.
func New(weight float64, topN int) Scorer {
	s := Scorer{Weight: weight, TopN: topN}
	return Scorer{Weight: s.weight(), TopN: s.topN()}
}

// FromConfig returns a Scorer for the graph section of the configuration.
func FromConfig(cfg model.Graph) Scorer {
	return New(cfg.SeverityWeight, cfg.HostTopNFindings)
}

// Finding returns the risk of a single finding rounded to 2 decimals. The
// severity is clamped to 0..4 and the score to [0, 10] first, so the result
// strictly grows with either input while the other stays fixed.
func (s Scorer) Finding(sev int, score float64) float64 {
	return Round(cvss.Clamp(score) + float64(severity.Clamp(sev))*s.weight())
}

// Host returns the sum of the TopN highest risks rounded to 2 decimals, 0 for
// no risks. The argument is not modified.
func (s Scorer) Host(risks []float64) float64 {
	if len(risks) == 0 {
		return 0
	}
	sorted := slices.Clone(risks)
	slices.SortFunc(sorted, func(a, b float64) int {
		return cmp.Compare(b, a)
	})
	var sum float64
	for _, r := range sorted[:min(len(sorted), s.topN())] {
		sum += r
	}
	return Round(sum)
}

func (s Scorer) weight() float64 {
	if s.Weight <= 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
		return model.DefaultSeverityWeight
	}
	return s.Weight
}

func (s Scorer) topN() int {
	if s.TopN <= 0 {
		return model.DefaultHostTopN
	}
	return s.TopN
}

// FindingRisk is Scorer.Finding with the default weight.
func FindingRisk(sev int, score float64) float64 {
	return Scorer{}.Finding(sev, score)
}

// HostRisk is Scorer.Host with the default weight and the given window.
func HostRisk(risks []float64, topN int) float64 {
	return Scorer{TopN: topN}.Host(risks)
}

// MaxSeverity returns the highest ordinal, 0 for none.
func MaxSeverity(ordinals []int) int {
	if len(ordinals) == 0 {
		return severity.Informational
	}
	return severity.Clamp(slices.Max(ordinals))
}

// Round rounds f to 2 decimal places.
func Round(f float64) float64 {
	return math.Round(f*100) / 100
}
