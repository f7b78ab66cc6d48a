// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package taxctlpath derives file paths from the taxctl base directory.
// All subdirectory layout is defined here so callers don't duplicate
// path construction logic.
//
// The base directory (--dir flag) contains:
//
//	taxctl.yaml          Config file
//	cache/rates/         Yearly exchange rate archives
//	reports/             Downloaded Flex Query statements
package taxctlpath

import (
	"fmt"
	"path/filepath"
)

// ConfigFileName is the well-known config file name within the base directory.
const ConfigFileName = "taxctl.yaml"

// ConfigFilePath returns the path to the config file within the base directory.
func ConfigFilePath(dirPath string) string {
	return filepath.Join(dirPath, ConfigFileName)
}

// CacheRatesDirPath returns the default directory for cached rate archives.
func CacheRatesDirPath(dirPath string) string {
	return filepath.Join(dirPath, "cache", "rates")
}

// ReportsDirPath returns the directory for downloaded broker reports.
func ReportsDirPath(dirPath string) string {
	return filepath.Join(dirPath, "reports")
}

// FlexQueryFilePath returns the default path of a downloaded Flex Query
// statement for the query.
func FlexQueryFilePath(dirPath string, queryID string) string {
	return filepath.Join(ReportsDirPath(dirPath), fmt.Sprintf("flex_query_%s.xml", queryID))
}
