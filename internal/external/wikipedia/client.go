// Package wikipedia scrapes index constituents (symbol, name, sector,
// industry) from a Wikipedia list page such as "List of S&P 500 companies".
package wikipedia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/pkg/httputil"
	"github.com/wonny/canslim/pkg/logger"
)

// Client fetches a constituents page
// ⭐ SSOT: 유니버스 구성 종목 스크래핑은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	pageURL    string
}

// NewClient creates a client for one constituents page
func NewClient(httpClient *httputil.Client, pageURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", "wikipedia"),
		pageURL:    pageURL,
	}
}

// GetUniverse downloads and parses the constituents table
func (c *Client) GetUniverse(ctx context.Context) ([]contracts.SymbolMeta, error) {
	html, err := c.fetchHTML(ctx)
	if err != nil {
		return nil, err
	}

	symbols, err := parseConstituents(html)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("count", len(symbols)).Info("Fetched universe constituents")
	return symbols, nil
}

// Ping fetches the page without parsing
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchHTML(ctx)
	return err
}

func (c *Client) fetchHTML(ctx context.Context) (string, error) {
	resp, err := c.httpClient.Get(ctx, c.pageURL)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httputil.StatusError{URL: c.pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

// parseConstituents reads table#constituents, falling back to the first
// wikitable. Columns are located by header text so reordering is tolerated.
func parseConstituents(html string) ([]contracts.SymbolMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table#constituents").First()
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("constituents table not found")
	}

	cols := map[string]int{"symbol": -1, "name": -1, "sector": -1, "industry": -1, "exchange": -1}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case strings.Contains(h, "symbol") || strings.Contains(h, "ticker"):
			cols["symbol"] = i
		case strings.Contains(h, "security") || h == "company" || h == "name":
			cols["name"] = i
		case strings.Contains(h, "sub-industry") || h == "industry":
			cols["industry"] = i
		case strings.Contains(h, "sector"):
			cols["sector"] = i
		case strings.Contains(h, "exchange"):
			cols["exchange"] = i
		}
	})
	if cols["symbol"] < 0 {
		return nil, fmt.Errorf("symbol column not found")
	}

	seen := make(map[string]bool)
	var out []contracts.SymbolMeta
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= cols["symbol"] {
			return
		}

		cell := func(key string) string {
			idx := cols[key]
			if idx < 0 || idx >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		sym := normalizeSymbol(cell("symbol"))
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true

		out = append(out, contracts.SymbolMeta{
			Symbol:   sym,
			Name:     cell("name"),
			Sector:   cell("sector"),
			Industry: cell("industry"),
			Exchange: cell("exchange"),
		})
	})
	return out, nil
}

// normalizeSymbol maps class-share dots to the dash form quote APIs use (BRK.B → BRK-B)
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, ".", "-")
}
