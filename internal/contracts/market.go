package contracts

import (
	"sort"
	"time"
)

// Bar is one trading day for one symbol
// ⭐ SSOT: 일봉 데이터 구조
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// EarningsRecord is one reported quarter.
// Revenue, NetIncome and Equity are optional and only feed the fundamentals rating.
type EarningsRecord struct {
	Symbol     string    `json:"symbol"`
	QuarterEnd time.Time `json:"quarter_end"`
	EPS        float64   `json:"eps"`
	Revenue    *float64  `json:"revenue,omitempty"`
	NetIncome  *float64  `json:"net_income,omitempty"`
	Equity     *float64  `json:"equity,omitempty"`
}

// OwnershipRecord is one institutional ownership observation
type OwnershipRecord struct {
	Symbol           string    `json:"symbol"`
	Date             time.Time `json:"date"`
	InstitutionalPct float64   `json:"institutional_pct"` // 0.0 ~ 1.0
	FilersAdded      int       `json:"filers_added"`
}

// SymbolMeta describes one universe member
type SymbolMeta struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
	Exchange string `json:"exchange"`
}

// SortBars orders bars ascending by date and drops duplicate dates, keeping the last one seen.
func SortBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return bars
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(b.Date) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

// BarsThrough returns the prefix of date-ordered bars on or before t
func BarsThrough(bars []Bar, t time.Time) []Bar {
	idx := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(t) })
	return bars[:idx]
}

// SortEarnings orders earnings records ascending by quarter end
func SortEarnings(records []EarningsRecord) []EarningsRecord {
	out := make([]EarningsRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].QuarterEnd.Before(out[j].QuarterEnd) })
	return out
}

// SortOwnership orders ownership observations ascending by date
func SortOwnership(records []OwnershipRecord) []OwnershipRecord {
	out := make([]OwnershipRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// EarningsThrough keeps records whose quarter ended on or before t
func EarningsThrough(records []EarningsRecord, t time.Time) []EarningsRecord {
	out := make([]EarningsRecord, 0, len(records))
	for _, r := range records {
		if !r.QuarterEnd.After(t) {
			out = append(out, r)
		}
	}
	return out
}

// OwnershipThrough keeps observations dated on or before t
func OwnershipThrough(records []OwnershipRecord, t time.Time) []OwnershipRecord {
	out := make([]OwnershipRecord, 0, len(records))
	for _, r := range records {
		if !r.Date.After(t) {
			out = append(out, r)
		}
	}
	return out
}
