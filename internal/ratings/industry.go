package ratings

import (
	"math"
	"sort"

	"github.com/wonny/canslim/internal/contracts"
)

// IndustryRanks ranks industries 1~99 by the mean trailing-year return of
// their members. Symbols without an industry or without a return are skipped.
// The result maps industry name → rank.
func IndustryRanks(returns map[string]float64, meta map[string]contracts.SymbolMeta) map[string]int {
	type agg struct {
		sum   float64
		count int
	}
	groups := make(map[string]*agg)
	for symbol, ret := range returns {
		m, ok := meta[symbol]
		if !ok || m.Industry == "" {
			continue
		}
		g := groups[m.Industry]
		if g == nil {
			g = &agg{}
			groups[m.Industry] = g
		}
		g.sum += ret
		g.count++
	}

	ranks := make(map[string]int, len(groups))
	if len(groups) == 0 {
		return ranks
	}
	if len(groups) == 1 {
		for name := range groups {
			ranks[name] = neutralRank
		}
		return ranks
	}

	means := make([]float64, 0, len(groups))
	for _, g := range groups {
		means = append(means, g.sum/float64(g.count))
	}
	sort.Float64s(means)

	peers := float64(len(means) - 1)
	for name, g := range groups {
		mean := g.sum / float64(g.count)
		beaten := float64(sort.SearchFloat64s(means, mean))
		ranks[name] = clampRank(int(math.Round(beaten / peers * 100)))
	}
	return ranks
}

// IndustryRankFor looks up a symbol's industry rank, 0 when unknown
func IndustryRankFor(symbol string, meta map[string]contracts.SymbolMeta, ranks map[string]int) int {
	m, ok := meta[symbol]
	if !ok {
		return 0
	}
	return ranks[m.Industry]
}
