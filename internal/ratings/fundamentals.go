package ratings

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/canslim/internal/contracts"
)

// Fundamentals holds the derived sales/margin/ROE figures; nil means unavailable
type Fundamentals struct {
	SalesGrowth *float64
	Margin      *float64
	ROE         *float64
}

func (f Fundamentals) empty() bool {
	return f.SalesGrowth == nil && f.Margin == nil && f.ROE == nil
}

// DeriveFundamentals extracts sales growth (latest vs year-ago quarter), net
// margin (latest quarter) and ROE (trailing 4Q net income over latest equity).
// Records must be ordered ascending.
func DeriveFundamentals(records []contracts.EarningsRecord) Fundamentals {
	var f Fundamentals
	n := len(records)
	if n == 0 {
		return f
	}
	latest := records[n-1]

	if latest.Revenue != nil {
		if base := yearAgo(records); base != nil && base.Revenue != nil && *base.Revenue > 0 {
			v := (*latest.Revenue - *base.Revenue) / *base.Revenue
			f.SalesGrowth = &v
		}
		if latest.NetIncome != nil && *latest.Revenue > 0 {
			v := *latest.NetIncome / *latest.Revenue
			f.Margin = &v
		}
	}

	if latest.Equity != nil && *latest.Equity > 0 && n >= 4 {
		var income float64
		complete := true
		for _, r := range records[n-4:] {
			if r.NetIncome == nil {
				complete = false
				break
			}
			income += *r.NetIncome
		}
		if complete {
			v := income / *latest.Equity
			f.ROE = &v
		}
	}
	return f
}

// FundamentalsBenchmark is the peer distribution of each fundamental figure
type FundamentalsBenchmark struct {
	salesGrowth []float64
	margin      []float64
	roe         []float64
}

// NewFundamentalsBenchmark collects peer figures from per-symbol earnings
func NewFundamentalsBenchmark(peers map[string][]contracts.EarningsRecord) *FundamentalsBenchmark {
	b := &FundamentalsBenchmark{}
	for _, records := range peers {
		f := DeriveFundamentals(records)
		if f.SalesGrowth != nil {
			b.salesGrowth = append(b.salesGrowth, *f.SalesGrowth)
		}
		if f.Margin != nil {
			b.margin = append(b.margin, *f.Margin)
		}
		if f.ROE != nil {
			b.roe = append(b.roe, *f.ROE)
		}
	}
	sort.Float64s(b.salesGrowth)
	sort.Float64s(b.margin)
	sort.Float64s(b.roe)
	return b
}

// FundamentalsRating grades sales growth, margin and ROE into A~E.
// With a peer benchmark the grade is percentile-based, otherwise fixed thresholds apply.
// No usable data yields "".
func FundamentalsRating(records []contracts.EarningsRecord, peers *FundamentalsBenchmark) string {
	f := DeriveFundamentals(records)
	if f.empty() {
		return ""
	}
	if peers != nil {
		if letter := percentileLetter(f, peers); letter != "" {
			return letter
		}
	}
	return thresholdLetter(f)
}

// thresholdLetter awards 0~2 points per available figure and bands the average
func thresholdLetter(f Fundamentals) string {
	var points, count float64
	score := func(v *float64, strong, fair float64) {
		if v == nil {
			return
		}
		count++
		switch {
		case *v >= strong:
			points += 2
		case *v >= fair:
			points++
		}
	}
	score(f.SalesGrowth, 0.25, 0.10)
	score(f.Margin, 0.15, 0.05)
	score(f.ROE, 0.17, 0.08)

	avg := points / count
	switch {
	case avg >= 1.5:
		return "A"
	case avg >= 1.0:
		return "B"
	case avg >= 0.5:
		return "C"
	case avg > 0:
		return "D"
	default:
		return "E"
	}
}

// percentileLetter averages the percentile of each figure among its peers
func percentileLetter(f Fundamentals, b *FundamentalsBenchmark) string {
	var sum, count float64
	add := func(v *float64, dist []float64) {
		if v == nil || len(dist) == 0 {
			return
		}
		sum += float64(sort.SearchFloat64s(dist, *v)) / float64(len(dist)) * 100
		count++
	}
	add(f.SalesGrowth, b.salesGrowth)
	add(f.Margin, b.margin)
	add(f.ROE, b.roe)

	if count == 0 {
		return ""
	}
	avg := sum / count
	switch {
	case avg >= 80:
		return "A"
	case avg >= 60:
		return "B"
	case avg >= 40:
		return "C"
	case avg >= 20:
		return "D"
	default:
		return "E"
	}
}

// yearAgo finds the record whose quarter end is closest to latest-1y within 45 days
func yearAgo(records []contracts.EarningsRecord) *contracts.EarningsRecord {
	n := len(records)
	if n < 2 {
		return nil
	}
	target := records[n-1].QuarterEnd.AddDate(-1, 0, 0)
	tolerance := 45 * 24 * time.Hour

	var best *contracts.EarningsRecord
	bestGap := time.Duration(math.MaxInt64)
	for i := range records[:n-1] {
		gap := records[i].QuarterEnd.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if gap <= tolerance && gap < bestGap {
			best = &records[i]
			bestGap = gap
		}
	}
	return best
}
