// Package stocks fetches market quotes from the Yahoo Finance chart API.
package stocks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"agenthub/internal/platform/httpclient"
	"agenthub/internal/shared"
)

// symbolPattern accepts tickers such as NVDA, BRK.B, RDS-A and ^GSPC.
var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-=]{0,14}$`)

// NormalizeSymbol upper-cases and validates a ticker symbol.
func NormalizeSymbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", shared.Validation("please enter a stock ticker")
	}
	if !symbolPattern.MatchString(s) {
		return "", shared.Validation(fmt.Sprintf("%q is not a valid ticker symbol", s))
	}
	return s, nil
}

// Bar is one daily close.
type Bar struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// Quote is the latest market data for one symbol.
type Quote struct {
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name,omitempty"`
	Currency         string    `json:"currency"`
	Exchange         string    `json:"exchange"`
	Price            float64   `json:"price"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
	DayHigh          float64   `json:"day_high,omitempty"`
	DayLow           float64   `json:"day_low,omitempty"`
	FiftyTwoWeekHigh float64   `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow  float64   `json:"fifty_two_week_low,omitempty"`
	Volume           int64     `json:"volume,omitempty"`
	MarketTime       time.Time `json:"market_time"`
	History          []Bar     `json:"history,omitempty"`
}

// Client queries the chart endpoint.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New creates a Client. baseURL is normally https://query1.finance.yahoo.com.
func New(c *httpclient.Client, baseURL string) *Client {
	return &Client{http: c, baseURL: strings.TrimRight(baseURL, "/")}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				LongName             string  `json:"longName"`
				ShortName            string  `json:"shortName"`
				Currency             string  `json:"currency"`
				ExchangeName         string  `json:"exchangeName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
				FiftyTwoWeekHigh     float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow      float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote returns the latest quote for symbol with up to days daily closes.
func (c *Client) Quote(ctx context.Context, symbol string, days int) (Quote, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}
	if days <= 0 {
		days = 5
	}
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", chartRange(days))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	var resp chartResponse
	if err := c.http.DoJSON(ctx, req, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Quote{}, fmt.Errorf("ticker %s: %w", symbol, shared.ErrNotFound)
		}
		return Quote{}, fmt.Errorf("stock quote %s: %w", symbol, err)
	}
	if e := resp.Chart.Error; e != nil {
		return Quote{}, fmt.Errorf("ticker %s: %s: %w", symbol, e.Description, shared.ErrNotFound)
	}
	if len(resp.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("ticker %s: %w", symbol, shared.ErrNotFound)
	}

	r := resp.Chart.Result[0]
	m := r.Meta
	out := Quote{
		Symbol:           m.Symbol,
		Name:             firstNonEmpty(m.LongName, m.ShortName),
		Currency:         m.Currency,
		Exchange:         m.ExchangeName,
		Price:            m.RegularMarketPrice,
		PreviousClose:    firstNonZero(m.PreviousClose, m.ChartPreviousClose),
		DayHigh:          m.RegularMarketDayHigh,
		DayLow:           m.RegularMarketDayLow,
		FiftyTwoWeekHigh: m.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  m.FiftyTwoWeekLow,
		Volume:           m.RegularMarketVolume,
		MarketTime:       time.Unix(m.RegularMarketTime, 0).UTC(),
	}
	if out.PreviousClose != 0 {
		out.Change = out.Price - out.PreviousClose
		out.ChangePercent = out.Change / out.PreviousClose * 100
	}
	if len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i, ts := range r.Timestamp {
			if i >= len(closes) || closes[i] == nil {
				continue // market holiday or partial day
			}
			out.History = append(out.History, Bar{Time: time.Unix(ts, 0).UTC(), Close: *closes[i]})
		}
		if len(out.History) > days {
			out.History = out.History[len(out.History)-days:]
		}
	}
	return out, nil
}

// chartRange picks the smallest Yahoo range covering days trading days.
func chartRange(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 21:
		return "1mo"
	case days <= 63:
		return "3mo"
	case days <= 126:
		return "6mo"
	default:
		return "1y"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
