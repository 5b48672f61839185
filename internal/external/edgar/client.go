// Package edgar reads quarterly fundamentals (diluted EPS, revenue, net
// income, stockholders' equity) from the SEC EDGAR XBRL companyfacts API.
package edgar

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
)

// DefaultTickersURL is SEC's ticker → CIK mapping
const DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"

// ErrUnknownTicker is returned when a symbol has no CIK mapping
var ErrUnknownTicker = errors.New("ticker not found in EDGAR mapping")

// XBRL concepts, in preference order
var (
	epsConcepts       = []string{"EarningsPerShareDiluted", "EarningsPerShareBasic"}
	revenueConcepts   = []string{"Revenues", "RevenueFromContractWithCustomerExcludingAssessedTax", "SalesRevenueNet"}
	netIncomeConcepts = []string{"NetIncomeLoss"}
	equityConcepts    = []string{"StockholdersEquity"}
)

var (
	quarterFrame = regexp.MustCompile(`^CY\d{4}Q[1-4]$`)
	instantFrame = regexp.MustCompile(`^CY\d{4}Q[1-4]I$`)
)

// Client calls the EDGAR API
// ⭐ SSOT: SEC EDGAR 재무 데이터 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	tickersURL string

	mu   sync.Mutex
	ciks map[string]int64
}

// NewClient creates an EDGAR client. SEC rejects requests without a
// descriptive User-Agent, so callers set one on httpClient via WithHeader.
func NewClient(httpClient *httputil.Client, baseURL, tickersURL string, log *logger.Logger) *Client {
	if tickersURL == "" {
		tickersURL = DefaultTickersURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", "edgar"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		tickersURL: tickersURL,
	}
}

type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

type fact struct {
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	Form  string  `json:"form"`
	Frame string  `json:"frame"`
	Filed string  `json:"filed"`
}

type companyFacts struct {
	CIK        int64  `json:"cik"`
	EntityName string `json:"entityName"`
	Facts      struct {
		USGAAP map[string]struct {
			Units map[string][]fact `json:"units"`
		} `json:"us-gaap"`
	} `json:"facts"`
}

// loadCIKs fetches the ticker mapping once per client
func (c *Client) loadCIKs(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ciks != nil {
		return c.ciks, nil
	}

	var raw map[string]tickerEntry
	if err := c.httpClient.GetJSON(ctx, c.tickersURL, &raw); err != nil {
		return nil, fmt.Errorf("fetch ticker mapping: %w", err)
	}

	ciks := make(map[string]int64, len(raw))
	for _, e := range raw {
		// company_tickers.json uses BRK-B style already; accept dotted input too
		ciks[strings.ToUpper(e.Ticker)] = e.CIK
	}
	c.ciks = ciks
	c.logger.WithField("count", len(ciks)).Debug("Loaded CIK mapping")
	return ciks, nil
}

// LookupCIK resolves a ticker to its CIK
func (c *Client) LookupCIK(ctx context.Context, symbol string) (int64, error) {
	ciks, err := c.loadCIKs(ctx)
	if err != nil {
		return 0, err
	}
	sym := strings.ToUpper(strings.ReplaceAll(symbol, ".", "-"))
	cik, ok := ciks[sym]
	if !ok {
		return 0, fmt.Errorf("%s: %w", symbol, ErrUnknownTicker)
	}
	return cik, nil
}

// FetchQuarterly returns quarterly records for one symbol, oldest first
func (c *Client) FetchQuarterly(ctx context.Context, symbol string) ([]contracts.EarningsRecord, error) {
	cik, err := c.LookupCIK(ctx, symbol)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%010d.json", c.baseURL, cik)
	var facts companyFacts
	if err := c.httpClient.GetJSON(ctx, url, &facts); err != nil {
		return nil, fmt.Errorf("fetch companyfacts %s: %w", symbol, err)
	}

	records := buildRecords(symbol, &facts)
	c.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"quarters": len(records),
	}).Debug("Fetched quarterly fundamentals")
	return records, nil
}

// buildRecords keys every quarter by its period end date. Only quarters
// with an EPS value become records; the other concepts are attached when present.
func buildRecords(symbol string, facts *companyFacts) []contracts.EarningsRecord {
	eps := pick(facts, epsConcepts, "USD/shares", quarterFrame)
	if len(eps) == 0 {
		return nil
	}
	revenue := pick(facts, revenueConcepts, "USD", quarterFrame)
	netIncome := pick(facts, netIncomeConcepts, "USD", quarterFrame)
	equity := pick(facts, equityConcepts, "USD", instantFrame)

	out := make([]contracts.EarningsRecord, 0, len(eps))
	for end, v := range eps {
		rec := contracts.EarningsRecord{Symbol: symbol, QuarterEnd: end, EPS: v}
		if r, ok := revenue[end]; ok {
			rec.Revenue = &r
		}
		if n, ok := netIncome[end]; ok {
			rec.NetIncome = &n
		}
		if e, ok := equity[end]; ok {
			rec.Equity = &e
		}
		out = append(out, rec)
	}
	return contracts.SortEarnings(out)
}

// pick returns end date → value for the first concept that has frame-matching facts
func pick(facts *companyFacts, concepts []string, unit string, frame *regexp.Regexp) map[time.Time]float64 {
	for _, name := range concepts {
		concept, ok := facts.Facts.USGAAP[name]
		if !ok {
			continue
		}
		values := make(map[time.Time]float64)
		for _, f := range concept.Units[unit] {
			if !frame.MatchString(f.Frame) {
				continue
			}
			end, err := time.Parse("2006-01-02", f.End)
			if err != nil {
				continue
			}
			values[end] = f.Val
		}
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

// GetQuarterlyEPS fetches symbols in turn; failures are joined and the rest returned
func (c *Client) GetQuarterlyEPS(ctx context.Context, symbols []string) (map[string][]contracts.EarningsRecord, error) {
	out := make(map[string][]contracts.EarningsRecord, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		recs, err := c.FetchQuarterly(ctx, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(recs) > 0 {
			out[sym] = recs
		}
	}
	return out, errors.Join(errs...)
}

// Ping loads the ticker mapping
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.loadCIKs(ctx)
	return err
}
