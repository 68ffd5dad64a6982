// Package exporter writes license server admin views to spreadsheets.
//
// A Report holds connections, failed logins, bans and optionally the
// attempts log. Report.Tables flattens it into named tables, which are
// written either as one Excel workbook (WriteXLSX, via excelize) or as one
// CSV file per table with a UTF-8 BOM for Excel.
//
// License keys are masked unless Report.FullKeys is set.
//
// Example usage:
//
//	files, err := exporter.Export("license_report.xlsx", exporter.Report{
//		Connections:  conns,
//		FailedLogins: failed,
//		Bans:         bans,
//	}, logger)
package exporter
