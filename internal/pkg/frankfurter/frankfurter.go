// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package frankfurter provides a client for the frankfurter.dev time series API.
//
// frankfurter.dev serves the European Central Bank reference rates. It needs no
// API key. Rates are only published on ECB working days.
//
// See https://frankfurter.dev.
package frankfurter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/backoff"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.frankfurter.dev/v1"

// DefaultRetryPolicy retries rate limiting and server errors a few times.
var DefaultRetryPolicy = backoff.Policy{
	MaxAttempts:  4,
	InitialDelay: time.Second,
	MaxDelay:     8 * time.Second,
}

// DailyRate is the rate published for one day.
type DailyRate struct {
	Date xtime.Date
	// Rate is the quote currency amount of one unit of the base currency.
	Rate decimal.Decimal
}

// Client fetches exchange rate time series.
type Client interface {
	// GetRates returns the rates of baseCurrency in quoteCurrency published
	// between startDate and endDate inclusive, sorted by date.
	GetRates(ctx context.Context, baseCurrency string, quoteCurrency string, startDate xtime.Date, endDate xtime.Date) ([]DailyRate, error)
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*client)

// ClientWithHTTPClient sets the HTTP client to use for requests.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// ClientWithBaseURL overrides the API base URL.
func ClientWithBaseURL(baseURL string) ClientOption {
	return func(c *client) {
		c.baseURL = baseURL
	}
}

// ClientWithRetryPolicy overrides DefaultRetryPolicy.
func ClientWithRetryPolicy(policy backoff.Policy) ClientOption {
	return func(c *client) {
		c.retryPolicy = policy
	}
}

// NewClient returns a new Client.
func NewClient(options ...ClientOption) Client {
	c := &client{
		httpClient:  http.DefaultClient,
		baseURL:     defaultBaseURL,
		retryPolicy: DefaultRetryPolicy,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// *** PRIVATE ***

type client struct {
	httpClient  *http.Client
	baseURL     string
	retryPolicy backoff.Policy
}

type timeSeriesResponse struct {
	// Rates maps a date to the rate of each requested symbol. json.Number keeps
	// the published digits.
	Rates map[string]map[string]json.Number `json:"rates"`
}

func (c *client) GetRates(ctx context.Context, baseCurrency string, quoteCurrency string, startDate xtime.Date, endDate xtime.Date) ([]DailyRate, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	reqURL := fmt.Sprintf(
		"%s/%s..%s?%s",
		c.baseURL,
		startDate,
		endDate,
		url.Values{
			"base":    {baseCurrency},
			"symbols": {quoteCurrency},
		}.Encode(),
	)
	body, err := backoff.Do(ctx, c.retryPolicy, nil, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}
	var response timeSeriesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing time series: %w", err)
	}
	dailyRates := make([]DailyRate, 0, len(response.Rates))
	for dateString, symbolRates := range response.Rates {
		number, ok := symbolRates[quoteCurrency]
		if !ok {
			continue
		}
		date, err := xtime.ParseDate(dateString)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", dateString, err)
		}
		rate, err := decimal.NewFromString(number.String())
		if err != nil {
			return nil, fmt.Errorf("parsing rate %q on %s: %w", number, dateString, err)
		}
		dailyRates = append(dailyRates, DailyRate{Date: date, Rate: rate})
	}
	slices.SortFunc(dailyRates, func(a DailyRate, b DailyRate) int {
		return a.Date.Compare(b.Date)
	})
	return dailyRates, nil
}

func (c *client) get(ctx context.Context, reqURL string) (_ []byte, retErr error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() {
		retErr = errors.Join(retErr, response.Body.Close())
	}()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case response.StatusCode == http.StatusOK:
		return body, nil
	case response.StatusCode == http.StatusTooManyRequests, response.StatusCode >= http.StatusInternalServerError:
		return nil, backoff.Retryable(fmt.Errorf("unexpected status %d", response.StatusCode))
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", response.StatusCode, body)
	}
}
