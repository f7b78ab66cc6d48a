// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ibkrflexquery reads IBKR Flex Query statements and downloads them
// from the Flex Web Service.
//
// A download takes two calls. SendRequest starts the query and answers with a
// reference code. GetStatement then returns the statement XML once IBKR has
// generated it. Until then it answers with a FlexStatementResponse carrying a
// transient error code, and the client polls again.
//
// A statement holds one FlexStatement per account. Only the sections needed for
// capital gains are decoded: Trades, UnbundledCommissionDetails,
// InterestAccruals and ChangeInDividendAccruals.
package ibkrflexquery

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/backoff"
	"github.com/bufdev/taxctl/internal/standard/xtime"
)

const (
	defaultBaseURL = "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService"
	// IBKR rejects requests without this User-Agent.
	userAgent = "Java"
	// apiVersion is the "v" parameter of both endpoints.
	apiVersion = "3"
)

// DefaultRetryPolicy polls for up to a few minutes while a statement is generated.
var DefaultRetryPolicy = backoff.Policy{
	MaxAttempts:  10,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
}

// ServiceError is an error answer of the Flex Web Service.
type ServiceError struct {
	Code    string
	Message string
}

// Error implements error.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("flex web service error %s: %s", e.Code, e.Message)
}

// Temporary reports whether the request may succeed when repeated.
//
// 1001 means the statement could not be generated at this time and 1019 means
// it is still being generated.
func (e *ServiceError) Temporary() bool {
	return e.Code == "1001" || e.Code == "1019"
}

// Client downloads Flex Query statements.
type Client interface {
	// Download runs the Flex Query and returns the statement XML.
	//
	// fromDate and toDate override the period configured for the query in the
	// IBKR portal. Both must be zero or both must be set. IBKR limits the
	// period to 365 days.
	//
	// The statement is parsed before it is returned.
	Download(ctx context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) ([]byte, error)
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*client)

// ClientWithHTTPClient sets the HTTP client to use for requests.
func ClientWithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// ClientWithBaseURL overrides the Flex Web Service base URL.
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
func NewClient(logger *slog.Logger, options ...ClientOption) Client {
	c := &client{
		logger:      logger,
		httpClient:  http.DefaultClient,
		baseURL:     defaultBaseURL,
		retryPolicy: DefaultRetryPolicy,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Parse parses statement XML into one FlexStatement per account.
func Parse(data []byte) ([]FlexStatement, error) {
	var response flexQueryResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return response.FlexStatements.Statements, nil
}

// ParseFile parses the statement XML at filePath.
func ParseFile(filePath string) ([]FlexStatement, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// FlexStatement is the statement of one account.
type FlexStatement struct {
	AccountID         string             `xml:"accountId,attr"`
	FromDate          string             `xml:"fromDate,attr"`
	ToDate            string             `xml:"toDate,attr"`
	Trades            []Trade            `xml:"Trades>Trade"`
	CommissionDetails []CommissionDetail `xml:"UnbundledCommissionDetails>UnbundledCommissionDetail"`
	InterestAccruals  []InterestAccrual  `xml:"InterestAccruals>InterestAccrualsCurrency"`
	DividendAccruals  []DividendAccrual  `xml:"ChangeInDividendAccruals>ChangeInDividendAccrual"`
}

// Trade is one execution.
//
// Numbers keep the text IBKR wrote so that callers can parse them exactly.
type Trade struct {
	AccountID     string `xml:"accountId,attr"`
	TradeID       string `xml:"tradeID,attr"`
	DateTime      string `xml:"dateTime,attr"`
	Symbol        string `xml:"symbol,attr"`
	AssetCategory string `xml:"assetCategory,attr"`
	BuySell       string `xml:"buySell,attr"`
	Quantity      string `xml:"quantity,attr"`
	TradePrice    string `xml:"tradePrice,attr"`
	Currency      string `xml:"currency,attr"`
	// IBCommission is negative.
	IBCommission         string `xml:"ibCommission,attr"`
	IBCommissionCurrency string `xml:"ibCommissionCurrency,attr"`
	ListingExchange      string `xml:"listingExchange,attr"`
	// UnderlyingListingExchange is only set for derivatives.
	UnderlyingListingExchange string `xml:"underlyingListingExchange,attr"`
}

// CommissionDetail is a third-party fee charged on one execution.
type CommissionDetail struct {
	DateTime        string `xml:"dateTime,attr"`
	Symbol          string `xml:"symbol,attr"`
	Currency        string `xml:"currency,attr"`
	TotalCommission string `xml:"totalCommission,attr"`
}

// InterestAccrual is the interest accrued in one currency over the statement period.
//
// The row with currency BaseSummaryCurrency totals all currencies in the
// account's base currency.
type InterestAccrual struct {
	Currency        string `xml:"currency,attr"`
	AccrualReversal string `xml:"accrualReversal,attr"`
}

// BaseSummaryCurrency is the currency of the InterestAccrual total row.
const BaseSummaryCurrency = "BASE_SUMMARY"

// DividendAccrual is a posting or reversal of an accrued dividend.
type DividendAccrual struct {
	Symbol      string `xml:"symbol,attr"`
	Currency    string `xml:"currency,attr"`
	PayDate     string `xml:"payDate,attr"`
	GrossAmount string `xml:"grossAmount,attr"`
	Tax         string `xml:"tax,attr"`
	// Code is DividendAccrualPosted or DividendAccrualReversed.
	Code string `xml:"code,attr"`
}

const (
	// DividendAccrualPosted is the code of a posted dividend accrual.
	DividendAccrualPosted = "Po"
	// DividendAccrualReversed is the code of a reversed dividend accrual.
	DividendAccrualReversed = "Re"
)

// *** PRIVATE ***

type client struct {
	logger      *slog.Logger
	httpClient  *http.Client
	baseURL     string
	retryPolicy backoff.Policy
}

type flexQueryResponse struct {
	XMLName        xml.Name `xml:"FlexQueryResponse"`
	FlexStatements struct {
		Statements []FlexStatement `xml:"FlexStatement"`
	} `xml:"FlexStatements"`
}

// statusResponse is the answer of SendRequest, and of GetStatement when no
// statement is available.
type statusResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Status        string   `xml:"Status"`
	ReferenceCode string   `xml:"ReferenceCode"`
	ErrorCode     string   `xml:"ErrorCode"`
	ErrorMessage  string   `xml:"ErrorMessage"`
}

func (c *client) Download(ctx context.Context, token string, queryID string, fromDate xtime.Date, toDate xtime.Date) ([]byte, error) {
	if token == "" {
		return nil, errors.New("flex web service token is required")
	}
	if queryID == "" {
		return nil, errors.New("flex query id is required")
	}
	if fromDate.IsZero() != toDate.IsZero() {
		return nil, errors.New("from and to dates must be set together")
	}
	if !fromDate.IsZero() && toDate.Before(fromDate) {
		return nil, fmt.Errorf("to date %s is before from date %s", toDate, fromDate)
	}
	params := url.Values{
		"t": {token},
		"q": {queryID},
		"v": {apiVersion},
	}
	if !fromDate.IsZero() {
		params.Set("fd", formatDate(fromDate))
		params.Set("td", formatDate(toDate))
	}
	referenceCode, err := poll(ctx, c, "SendRequest", params, func(body []byte) (string, error) {
		status, err := parseStatus(body)
		if err != nil {
			return "", err
		}
		return status.ReferenceCode, nil
	})
	if err != nil {
		return nil, fmt.Errorf("requesting flex query %s: %w", queryID, err)
	}
	c.logger.Info("flex query requested", "query_id", queryID, "reference_code", referenceCode)
	data, err := poll(
		ctx,
		c,
		"GetStatement",
		url.Values{
			"t": {token},
			"q": {referenceCode},
			"v": {apiVersion},
		},
		func(body []byte) ([]byte, error) {
			// A statement starts with FlexQueryResponse, anything else is a status.
			if bytes.Contains(body, []byte("<FlexStatementResponse")) {
				if _, err := parseStatus(body); err != nil {
					return nil, err
				}
				return nil, errors.New("status response without statement")
			}
			return body, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("fetching flex statement %s: %w", referenceCode, err)
	}
	if _, err := Parse(data); err != nil {
		return nil, fmt.Errorf("parsing flex statement: %w", err)
	}
	return data, nil
}

// poll calls the endpoint under the client's retry policy and hands each
// successful body to decode. Temporary service errors are retried.
func poll[T any](
	ctx context.Context,
	c *client,
	endpoint string,
	params url.Values,
	decode func([]byte) (T, error),
) (T, error) {
	return backoff.Do(
		ctx,
		c.retryPolicy,
		func(attempt int, err error) {
			c.logger.Warn("flex web service not ready, retrying", "endpoint", endpoint, "attempt", attempt+1, "error", err)
		},
		func(ctx context.Context) (T, error) {
			var zero T
			body, err := c.get(ctx, endpoint, params)
			if err != nil {
				return zero, err
			}
			value, err := decode(body)
			if serviceErr := (*ServiceError)(nil); errors.As(err, &serviceErr) && serviceErr.Temporary() {
				return zero, backoff.Retryable(err)
			}
			return value, err
		},
	)
}

func (c *client) get(ctx context.Context, endpoint string, params url.Values) (_ []byte, retErr error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("User-Agent", userAgent)
	c.logger.Debug("flex web service call", "endpoint", endpoint)
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
		err := fmt.Errorf("%s returned status %d", endpoint, response.StatusCode)
		if response.StatusCode >= http.StatusInternalServerError {
			return nil, backoff.Retryable(err)
		}
		return nil, err
	}
	return body, nil
}

func parseStatus(body []byte) (*statusResponse, error) {
	var status statusResponse
	if err := xml.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status response: %w", err)
	}
	if status.Status != "Success" {
		return nil, &ServiceError{
			Code:    status.ErrorCode,
			Message: status.ErrorMessage,
		}
	}
	return &status, nil
}

// formatDate formats a date as YYYYMMDD.
func formatDate(date xtime.Date) string {
	return fmt.Sprintf("%04d%02d%02d", date.Year, date.Month, date.Day)
}
