// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlcalc

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bufdev/taxctl/internal/pkg/cliio"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
	"github.com/shopspring/decimal"
)

// Result is the JSON output of a calculation.
type Result struct {
	Summary              *taxctltaxation.Summary `json:"summary"`
	OutstandingPositions []*OutstandingPosition  `json:"outstanding_positions"`
}

// OutstandingPosition is an open lot at the end of the data.
type OutstandingPosition struct {
	Account  string          `json:"account"`
	Symbol   string          `json:"symbol"`
	Exchange string          `json:"exchange"`
	Date     xtime.Date      `json:"date"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// NewResult returns the Result for a summary and its outstanding positions.
func NewResult(summary *taxctltaxation.Summary, records []*taxctltrade.TradeRecord) *Result {
	outstandingPositions := make([]*OutstandingPosition, 0, len(records))
	for _, record := range records {
		outstandingPositions = append(outstandingPositions, &OutstandingPosition{
			Account:  record.Account(),
			Symbol:   record.Symbol(),
			Exchange: record.Exchange(),
			Date:     xtime.TimeToDate(record.Timestamp()),
			Quantity: record.SignedQuantity(),
			Price:    record.Price(),
			Currency: record.Currency(),
		})
	}
	return &Result{
		Summary:              summary,
		OutstandingPositions: outstandingPositions,
	}
}

// WriteResult writes the result in the format.
func WriteResult(writer io.Writer, format cliio.Format, result *Result) error {
	switch format {
	case cliio.FormatTable:
		return writeTable(writer, result)
	case cliio.FormatCSV:
		return cliio.WriteCSVRecords(writer, csvRecords(result))
	case cliio.FormatJSON:
		return cliio.WriteJSON(writer, result)
	case cliio.FormatMarkdown:
		return cliio.WriteMarkdown(writer, Markdown(result))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// Markdown returns the result as a markdown document.
func Markdown(result *Result) string {
	summary := result.Summary
	formatAmount := amountFormatter(summary.BaseCurrency)
	var builder strings.Builder
	fmt.Fprintf(&builder, "# Tax year %d\n\nMethod: %s\n\n", summary.TaxYear, summary.Method)
	builder.WriteString("## Summary\n\n")
	builder.WriteString(cliio.MarkdownTable([]string{"Item", "Value"}, summaryRows(summary, formatAmount)))
	if len(summary.Countries) > 0 {
		builder.WriteString("\n## Countries\n\n")
		builder.WriteString(cliio.MarkdownTable(countryHeaders, countryRows(summary, formatAmount)))
	}
	if len(summary.Positions) > 0 {
		builder.WriteString("\n## Closed positions\n\n")
		builder.WriteString(cliio.MarkdownTable(positionHeaders, positionRows(summary, formatAmount)))
	}
	if len(result.OutstandingPositions) > 0 {
		builder.WriteString("\n## Outstanding positions\n\n")
		builder.WriteString(cliio.MarkdownTable(outstandingHeaders, outstandingRows(result.OutstandingPositions)))
	}
	return builder.String()
}

// *** PRIVATE ***

var (
	countryHeaders     = []string{"COUNTRY", "INCOME", "COST", "PROFIT", "PIT-ZG"}
	positionHeaders    = []string{"ACCOUNT", "SYMBOL", "PROFIT"}
	outstandingHeaders = []string{"ACCOUNT", "SYMBOL", "EXCHANGE", "DATE", "QUANTITY", "PRICE", "CURRENCY"}
)

func writeTable(writer io.Writer, result *Result) error {
	summary := result.Summary
	formatAmount := amountFormatter(summary.BaseCurrency)
	if _, err := fmt.Fprintf(writer, "TAX YEAR %d (%s)\n\n", summary.TaxYear, summary.Method); err != nil {
		return err
	}
	if err := cliio.WriteTable(writer, []string{"ITEM", "VALUE"}, summaryRows(summary, formatAmount)); err != nil {
		return err
	}
	if len(summary.Countries) > 0 {
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
		if err := cliio.WriteTable(writer, countryHeaders, countryRows(summary, formatAmount)); err != nil {
			return err
		}
	}
	if len(summary.Positions) > 0 {
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
		totalsRow := []string{"TOTAL", "", formatAmount(positionsProfit(summary))}
		if err := cliio.WriteTableWithTotals(writer, positionHeaders, positionRows(summary, formatAmount), totalsRow); err != nil {
			return err
		}
	}
	if len(result.OutstandingPositions) > 0 {
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
		if err := cliio.WriteTable(writer, outstandingHeaders, outstandingRows(result.OutstandingPositions)); err != nil {
			return err
		}
	}
	return nil
}

// csvRecords returns the result in long form with undecorated amounts.
func csvRecords(result *Result) [][]string {
	summary := result.Summary
	records := [][]string{{"SECTION", "NAME", "VALUE"}}
	records = append(records, summaryRows(summary, decimal.Decimal.String)...)
	for i := 1; i < len(records); i++ {
		records[i] = append([]string{"summary"}, records[i]...)
	}
	for _, country := range summary.Countries {
		records = append(
			records,
			[]string{"country", country.Country + " income", country.Income.String()},
			[]string{"country", country.Country + " cost", country.Cost.String()},
			[]string{"country", country.Country + " profit", country.Profit.String()},
		)
	}
	for _, position := range summary.Positions {
		records = append(records, []string{"position", position.Account + " " + position.Symbol, position.Profit.String()})
	}
	for _, position := range result.OutstandingPositions {
		records = append(records, []string{"outstanding", position.Account + " " + position.Symbol, strconv.FormatInt(position.Quantity, 10)})
	}
	return records
}

func summaryRows(summary *taxctltaxation.Summary, formatAmount func(decimal.Decimal) string) [][]string {
	return [][]string{
		{"Transaction income", formatAmount(summary.TransactionIncome)},
		{"Transaction cost", formatAmount(summary.TransactionCost)},
		{"Other costs", formatAmount(summary.Costs)},
		{"Total cost", formatAmount(summary.TotalCost)},
		{"Profit", formatAmount(summary.Profit)},
		{"Owed tax", formatAmount(summary.TransactionOwedTax)},
		{"Dividends", formatAmount(summary.DividendValue)},
		{"Dividend tax withheld", formatAmount(summary.DividendWithholdingTax)},
		{"Dividend owed tax", formatAmount(summary.DividendOwedTax)},
	}
}

func countryRows(summary *taxctltaxation.Summary, formatAmount func(decimal.Decimal) string) [][]string {
	rows := make([][]string, 0, len(summary.Countries))
	for _, country := range summary.Countries {
		formRequired := "no"
		if country.FormRequired {
			formRequired = "yes"
		}
		rows = append(rows, []string{
			country.Country,
			formatAmount(country.Income),
			formatAmount(country.Cost),
			formatAmount(country.Profit),
			formRequired,
		})
	}
	return rows
}

func positionRows(summary *taxctltaxation.Summary, formatAmount func(decimal.Decimal) string) [][]string {
	rows := make([][]string, 0, len(summary.Positions))
	for _, position := range summary.Positions {
		rows = append(rows, []string{position.Account, position.Symbol, formatAmount(position.Profit)})
	}
	return rows
}

func positionsProfit(summary *taxctltaxation.Summary) decimal.Decimal {
	total := decimal.Zero
	for _, position := range summary.Positions {
		total = total.Add(position.Profit)
	}
	return total
}

func outstandingRows(outstandingPositions []*OutstandingPosition) [][]string {
	rows := make([][]string, 0, len(outstandingPositions))
	for _, position := range outstandingPositions {
		rows = append(rows, []string{
			position.Account,
			position.Symbol,
			position.Exchange,
			position.Date.String(),
			strconv.FormatInt(position.Quantity, 10),
			position.Price.String(),
			position.Currency,
		})
	}
	return rows
}

func amountFormatter(currency string) func(decimal.Decimal) string {
	return func(amount decimal.Decimal) string {
		return cliio.FormatAmount(amount, currency)
	}
}
