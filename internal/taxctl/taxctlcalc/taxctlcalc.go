// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlcalc runs a tax calculation over a set of broker reports.
package taxctlcalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bufdev/taxctl/internal/taxctl/taxctlledger"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlrates"
	"github.com/bufdev/taxctl/internal/taxctl/taxctlreport"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltaxation"
	"github.com/bufdev/taxctl/internal/taxctl/taxctltrade"
)

// RunParams are the inputs of a calculation.
type RunParams struct {
	// Method is the taxation method, e.g. taxctltaxation.MethodPolishNBPFIFO.
	Method string
	// TaxYear is the year to calculate.
	TaxYear int
	// Provider supplies exchange rates. Rates are only requested for
	// conversions, so a lazily loading provider downloads only what is used.
	Provider taxctlrates.Provider
	// ReportParams configure the report adapters.
	ReportParams taxctlreport.Params
	// ReportType forces the report type of every file. If empty, the type
	// of each file is detected.
	ReportType string
	// FilePaths are the report files, processed in order.
	FilePaths []string
}

// Run processes the report files and returns the summary of the tax year
// along with the positions still open at the end of the data.
//
// The first error aborts the run.
func Run(ctx context.Context, logger *slog.Logger, params RunParams) (*taxctltaxation.Summary, []*taxctltrade.TradeRecord, error) {
	if len(params.FilePaths) == 0 {
		return nil, nil, errors.New("no report files given")
	}
	if params.Provider == nil {
		return nil, nil, errors.New("no rate provider given")
	}
	taxation, err := taxctltaxation.NewTaxation(logger, params.Method, params.TaxYear, params.Provider)
	if err != nil {
		return nil, nil, err
	}
	ledger := taxctlledger.NewLedger(logger, taxation)
	reports, err := taxctlreport.NewReports(logger, params.ReportParams)
	if err != nil {
		return nil, nil, err
	}
	for _, filePath := range params.FilePaths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		report, err := resolveReport(reports, params.ReportType, filePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("processing report", "file", filePath, "type", report.Type())
		if err := report.Process(ledger, taxation, filePath); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", filePath, err)
		}
	}
	if earliestYear, ok := ledger.EarliestYear(); ok {
		logger.Info("trades loaded", "trades", ledger.Len(), "groups", len(ledger.Keys()), "earliest_year", earliestYear)
		if earliestYear > params.TaxYear {
			logger.Warn("all trades are after the tax year", "earliest_year", earliestYear, "tax_year", params.TaxYear)
		}
	}
	if err := ledger.CalculateClosedPositions(params.TaxYear); err != nil {
		return nil, nil, err
	}
	return taxation.Summary(), ledger.OutstandingPositions(), nil
}

// Detect returns the report type of each file.
func Detect(logger *slog.Logger, reportParams taxctlreport.Params, filePaths []string) ([]string, error) {
	reports, err := taxctlreport.NewReports(logger, reportParams)
	if err != nil {
		return nil, err
	}
	reportTypes := make([]string, 0, len(filePaths))
	for _, filePath := range filePaths {
		report, err := taxctlreport.Sniff(reports, filePath)
		if err != nil {
			return nil, err
		}
		reportTypes = append(reportTypes, report.Type())
	}
	return reportTypes, nil
}

// *** PRIVATE ***

func resolveReport(reports []taxctlreport.Report, reportType string, filePath string) (taxctlreport.Report, error) {
	if reportType != "" {
		return taxctlreport.Get(reports, reportType)
	}
	return taxctlreport.Sniff(reports, filePath)
}
