package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
)

// 2024-01-02 and 2024-01-03 14:30 UTC
const chartJSON = `{
  "chart": {
    "result": [{
      "timestamp": [1704205800, 1704292200, 1704378600],
      "indicators": {"quote": [{
        "open":   [100.0, 101.0, null],
        "high":   [102.0, 103.0, null],
        "low":    [99.0, 100.5, null],
        "close":  [101.5, 102.5, null],
        "volume": [1000000, 1200000, null]
      }]}
    }],
    "error": null
  }
}`

func newTestClient(baseURL string) *Client {
	hc := httputil.New(&config.Config{}, logger.Nop()).DisableRetry()
	return NewClient(hc, baseURL, logger.Nop())
}

func TestFetchBars(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		_, _ = w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	bars, err := c.FetchBars(context.Background(), "AAPL",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, "1d", gotInterval)
	require.Len(t, bars, 2, "null row skipped")
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 101.5, bars[0].Close)
	assert.Equal(t, int64(1200000), bars[1].Volume)
}

func TestParseChartError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"api error", `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, 0, true},
		{"empty result", `{"chart":{"result":[],"error":null}}`, 0, false},
		{"no quotes", `{"chart":{"result":[{"timestamp":[1704205800],"indicators":{"quote":[]}}]}}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			bars, err := newTestClient(srv.URL).FetchBars(context.Background(), "X", time.Now(), time.Now())
			if (err != nil) != tt.wantErr {
				t.Errorf("FetchBars() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(bars) != tt.want {
				t.Errorf("FetchBars() got %d bars, want %d", len(bars), tt.want)
			}
		})
	}
}

func TestGetOHLCVPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).GetOHLCV(context.Background(), []string{"AAPL", "BAD", "MSFT"}, time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD")
	assert.Len(t, out, 2)
}
