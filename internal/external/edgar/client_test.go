package edgar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
)

const tickersJSON = `{
  "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
  "1": {"cik_str": 1067983, "ticker": "BRK-B", "title": "Berkshire Hathaway"}
}`

const factsJSON = `{
  "cik": 320193,
  "entityName": "Apple Inc.",
  "facts": {"us-gaap": {
    "EarningsPerShareDiluted": {"units": {"USD/shares": [
      {"end": "2023-07-01", "val": 1.26, "form": "10-Q", "frame": "CY2023Q2"},
      {"end": "2023-09-30", "val": 1.46, "form": "10-K", "frame": "CY2023Q3"},
      {"end": "2023-09-30", "val": 6.13, "form": "10-K", "frame": "CY2023"},
      {"end": "2023-12-30", "val": 2.18, "form": "10-Q"}
    ]}},
    "RevenueFromContractWithCustomerExcludingAssessedTax": {"units": {"USD": [
      {"end": "2023-07-01", "val": 81797000000, "frame": "CY2023Q2"}
    ]}},
    "StockholdersEquity": {"units": {"USD": [
      {"end": "2023-09-30", "val": 62146000000, "frame": "CY2023Q3I"}
    ]}}
  }}
}`

func newTestServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	tickerCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/company_tickers.json":
			tickerCalls++
			_, _ = w.Write([]byte(tickersJSON))
		case "/api/xbrl/companyfacts/CIK0000320193.json":
			_, _ = w.Write([]byte(factsJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &tickerCalls
}

func newTestClient(srv *httptest.Server) *Client {
	hc := httputil.New(&config.Config{}, logger.Nop()).DisableRetry().WithHeader("User-Agent", "test test@example.com")
	return NewClient(hc, srv.URL, srv.URL+"/files/company_tickers.json", logger.Nop())
}

func TestFetchQuarterly(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(srv)

	recs, err := c.FetchQuarterly(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, recs, 2, "annual and unframed facts are ignored")

	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), recs[0].QuarterEnd)
	assert.Equal(t, 1.26, recs[0].EPS)
	require.NotNil(t, recs[0].Revenue)
	assert.Equal(t, 81797000000.0, *recs[0].Revenue)
	assert.Nil(t, recs[0].Equity)

	assert.Equal(t, 1.46, recs[1].EPS)
	require.NotNil(t, recs[1].Equity)
	assert.Nil(t, recs[1].NetIncome)
}

func TestLookupCIK(t *testing.T) {
	srv, calls := newTestServer(t)
	c := newTestClient(srv)
	ctx := context.Background()

	cik, err := c.LookupCIK(ctx, "brk.b")
	require.NoError(t, err)
	assert.Equal(t, int64(1067983), cik)

	_, err = c.LookupCIK(ctx, "ZZZZ")
	assert.True(t, errors.Is(err, ErrUnknownTicker))
	assert.Equal(t, 1, *calls, "mapping is cached")
}

func TestGetQuarterlyEPSPartial(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newTestClient(srv)

	// BRK-B maps to a CIK the server has no facts for
	out, err := c.GetQuarterlyEPS(context.Background(), []string{"AAPL", "BRK-B", "NOPE"})
	require.Error(t, err)
	assert.Len(t, out, 1)
	assert.Len(t, out["AAPL"], 2)
	assert.NoError(t, c.Ping(context.Background()))
}
