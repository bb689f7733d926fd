package source

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NAVRecord is one parsed row of the fund NAV bulk feed.
type NAVRecord struct {
	Identifier string // ISIN the row was matched on
	NAV        decimal.Decimal
	Date       time.Time
	Name       string
}

// NAVFeedClient downloads the semicolon-delimited fund NAV document. The
// feed carries every listed fund; callers filter by ISIN.
//
// Row shape: SchemeCode;ISIN Payout;ISIN Reinvestment;Scheme Name;NAV;Date
type NAVFeedClient struct {
	URL    string
	Client *http.Client
}

func NewNAVFeedClient(url string) *NAVFeedClient {
	return &NAVFeedClient{
		URL:    url,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

const navDateLayout = "02-Jan-2006"

// FetchByISIN downloads the feed and returns the rows whose secondary
// identifier columns match one of the requested ISINs, keyed by that ISIN.
func (c *NAVFeedClient) FetchByISIN(ctx context.Context, isins []string) (map[string]NAVRecord, error) {
	wanted := make(map[string]struct{}, len(isins))
	for _, id := range isins {
		wanted[id] = struct{}{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nav feed: %v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nav feed: status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	out := make(map[string]NAVRecord)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, isins, ok := parseNAVLine(scanner.Text())
		if !ok {
			continue
		}
		for _, isin := range isins {
			if _, want := wanted[isin]; want {
				rec.Identifier = isin
				out[isin] = rec
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("nav feed: read: %v: %w", err, ErrSourceUnavailable)
	}
	return out, nil
}

// parseNAVLine parses one feed row, returning ok=false for headers,
// category separators, and malformed rows.
func parseNAVLine(line string) (NAVRecord, []string, bool) {
	line = strings.TrimSpace(line)
	// Category and fund-house separator rows carry no delimiter at all.
	if line == "" || !strings.Contains(line, ";") {
		return NAVRecord{}, nil, false
	}
	// Header row repeats the column names.
	if strings.Contains(line, "Scheme Code") || strings.Contains(line, "Net Asset Value") {
		return NAVRecord{}, nil, false
	}

	fields := strings.Split(line, ";")
	if len(fields) < 6 {
		return NAVRecord{}, nil, false
	}

	nav, err := decimal.NewFromString(strings.TrimSpace(fields[4]))
	if err != nil {
		return NAVRecord{}, nil, false
	}
	date, err := time.Parse(navDateLayout, strings.TrimSpace(fields[5]))
	if err != nil {
		return NAVRecord{}, nil, false
	}

	rec := NAVRecord{
		NAV:  nav,
		Date: date,
		Name: strings.TrimSpace(fields[3]),
	}

	// Rows are matched on the ISIN columns, not the scheme code. A row may
	// carry a payout ISIN, a reinvestment ISIN, or both.
	var isins []string
	for _, f := range fields[1:3] {
		f = strings.TrimSpace(f)
		if f != "" && f != "-" {
			isins = append(isins, f)
		}
	}
	if len(isins) == 0 {
		return NAVRecord{}, nil, false
	}
	return rec, isins, true
}
