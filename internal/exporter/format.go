package exporter

import (
	"math"
	"strconv"
	"strings"
)

// maxSheetName is the Excel limit on worksheet name length
const maxSheetName = 31

// cellValue converts a CSV field into a typed worksheet value so numbers stay numeric in Excel
func cellValue(field string) interface{} {
	if field == "" {
		return nil
	}
	if i, err := strconv.ParseInt(field, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	if field == "true" || field == "false" {
		return field == "true"
	}
	return field
}

// sheetName replaces characters Excel rejects and truncates to the length limit
func sheetName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "Sheet"
	}
	if len(cleaned) > maxSheetName {
		cleaned = cleaned[:maxSheetName]
	}
	return cleaned
}
