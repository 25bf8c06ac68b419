// Package exporter writes tabular results to disk.
//
// CSVWriter writes whole tables or streams records, resolving relative paths
// against a base directory.
//
// WorkbookWriter writes several tables as worksheets of one XLSX workbook,
// converting numeric fields to numeric cells.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter("/path/to/out")
//	err := writer.WriteTable("summary.csv", headers, records)
//
//	book := exporter.NewWorkbookWriter()
//	err = book.WriteWorkbook("/path/to/out/results.xlsx", []exporter.Sheet{
//		{Name: "summary", Headers: headers, Records: records},
//	})
package exporter
