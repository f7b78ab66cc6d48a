// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package nbp provides a client for downloading the National Bank of Poland
// (NBP) table A exchange rate archives.
//
// NBP publishes one archive file per calendar year. Each file is a
// semicolon-delimited, Windows-1250 encoded table with a "data" column holding
// the publication date (YYYYMMDD) and one column per currency named
// "<units><CODE>" (e.g. "1USD", "100HUF"), with decimal commas. Rates are PLN
// per <units> of the currency. The API is free and does not require
// authentication.
//
// See https://nbp.pl/statystyka-i-sprawozdawczosc/kursy/archiwum-tabela-a-csv-xls/.
package nbp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/backoff"
)

// archiveURLTemplate is the URL template of a yearly table A archive.
const archiveURLTemplate = "https://static.nbp.pl/dane/kursy/Archiwum/archiwum_tab_a_%d.csv"

// DefaultRetryPolicy retries server errors a few times.
var DefaultRetryPolicy = backoff.Policy{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     4 * time.Second,
}

// Client downloads yearly NBP rate archives.
type Client interface {
	// GetArchive returns the raw table A archive for the calendar year.
	GetArchive(ctx context.Context, year int) ([]byte, error)
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*client)

// ClientWithHTTPClient sets the HTTP client to use for requests.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// ClientWithURLTemplate overrides the archive URL template. The template
// receives the year as its only argument.
func ClientWithURLTemplate(urlTemplate string) ClientOption {
	return func(c *client) {
		c.urlTemplate = urlTemplate
	}
}

// ClientWithRetryPolicy overrides DefaultRetryPolicy.
func ClientWithRetryPolicy(policy backoff.Policy) ClientOption {
	return func(c *client) {
		c.retryPolicy = policy
	}
}

// NewClient creates a new NBP archive client with the given options.
func NewClient(options ...ClientOption) Client {
	c := &client{
		httpClient:  http.DefaultClient,
		urlTemplate: archiveURLTemplate,
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
	urlTemplate string
	retryPolicy backoff.Policy
}

func (c *client) GetArchive(ctx context.Context, year int) ([]byte, error) {
	reqURL := fmt.Sprintf(c.urlTemplate, year)
	return backoff.Do(ctx, c.retryPolicy, nil, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, reqURL)
	})
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
	if response.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d fetching %s", response.StatusCode, reqURL)
		if response.StatusCode >= http.StatusInternalServerError {
			return nil, backoff.Retryable(err)
		}
		return nil, err
	}
	return body, nil
}
