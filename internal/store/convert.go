package store

import (
	"database/sql"
	"sort"

	"eventstudy/internal/eventstudy"
)

func nullFloat(f eventstudy.Float) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f.Value, Valid: f.Valid}
}

func toFloat(n sql.NullFloat64) eventstudy.Float {
	if !n.Valid {
		return eventstudy.Float{}
	}
	return eventstudy.Some(n.Float64)
}

// sortSummary restores engine output order: method, then width
func sortSummary(rows []eventstudy.SummaryRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Method != rows[j].Method {
			return rows[i].Method < rows[j].Method
		}
		return rows[i].Width < rows[j].Width
	})
}
