// Package store persists event-study results in an embedded SQLite database.
//
// Each run is keyed by its run id. Saving a run again replaces every row of that
// run inside one transaction, so re-running with the same id is idempotent.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/eventstudy"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	events INTEGER NOT NULL,
	config TEXT NOT NULL,
	diagnostics TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_cars (
	run_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	firm_id TEXT NOT NULL,
	event_date TEXT NOT NULL,
	method TEXT NOT NULL,
	width INTEGER NOT NULL,
	car REAL,
	days INTEGER NOT NULL,
	tstat REAL,
	PRIMARY KEY (run_id, event_id, method, width)
);

CREATE TABLE IF NOT EXISTS summary (
	run_id TEXT NOT NULL,
	method TEXT NOT NULL,
	width INTEGER NOT NULL,
	n INTEGER NOT NULL,
	positive INTEGER NOT NULL,
	mean_car REAL,
	median_car REAL,
	sd_car REAL,
	pct_positive REAL,
	t_stat REAL,
	t_p REAL,
	sign_p REAL,
	signed_rank_p REAL,
	PRIMARY KEY (run_id, method, width)
);

CREATE TABLE IF NOT EXISTS firm_params (
	run_id TEXT NOT NULL,
	firm_id TEXT NOT NULL,
	alpha REAL,
	beta REAL,
	r2 REAL,
	resid_var REAL,
	observations INTEGER NOT NULL,
	mean_ret REAL,
	mean_observations INTEGER NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (run_id, firm_id)
);
`

// Store is a SQLite-backed result store
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// RunInfo describes one stored run
type RunInfo struct {
	RunID     string
	CreatedAt time.Time
	Events    int
	// CARs counts stored (event, method, width) rows, defined or not
	CARs int
}

// Open opens or creates the database at path and applies the schema
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open database", err).WithContext("path", path)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to connect to database", err).WithContext("path", path)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to apply schema", err).WithContext("path", path)
	}

	logger.DebugContext(ctx, "opened result store", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun replaces every stored row of runID with the tables of res
func (s *Store) SaveRun(ctx context.Context, runID string, res *eventstudy.Result) (err error) {
	if runID == "" {
		return apperrors.NewValidationError("run id is required", nil)
	}
	if res == nil {
		return apperrors.NewValidationError("no result to save", nil)
	}

	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return apperrors.NewStorageError("failed to encode config", err)
	}
	diagJSON, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return apperrors.NewStorageError("failed to encode diagnostics", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"runs", "event_cars", "summary", "firm_params"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return apperrors.NewStorageError("failed to clear previous run", err).WithContext("table", table)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, events, config, diagnostics) VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), len(res.Events), string(cfgJSON), string(diagJSON),
	); err != nil {
		return apperrors.NewStorageError("failed to insert run", err)
	}

	if err = insertEventCARs(ctx, tx, runID, res.Events); err != nil {
		return err
	}
	if err = insertSummary(ctx, tx, runID, res.Summary); err != nil {
		return err
	}
	if err = insertParams(ctx, tx, runID, res.Params); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit run", err)
	}

	s.logger.InfoContext(ctx, "stored run",
		"run_id", runID,
		"events", len(res.Events),
		"summary_rows", len(res.Summary),
		"firms", len(res.Params),
	)
	return nil
}

func insertEventCARs(ctx context.Context, tx *sql.Tx, runID string, events []eventstudy.EventResult) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO event_cars
		(run_id, event_id, firm_id, event_date, method, width, car, days, tstat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare event insert", err)
	}
	defer stmt.Close()

	for _, e := range events {
		for _, c := range e.CARs {
			if _, err := stmt.ExecContext(ctx,
				runID, e.EventID, e.FirmID, e.Date.Format("2006-01-02"),
				c.Method.String(), c.Width, nullFloat(c.Value), c.Days, nullFloat(c.TStat),
			); err != nil {
				return apperrors.NewStorageError("failed to insert event CAR", err).WithContext("event_id", e.EventID)
			}
		}
	}
	return nil
}

func insertSummary(ctx context.Context, tx *sql.Tx, runID string, summary []eventstudy.SummaryRow) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO summary
		(run_id, method, width, n, positive, mean_car, median_car, sd_car, pct_positive, t_stat, t_p, sign_p, signed_rank_p)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare summary insert", err)
	}
	defer stmt.Close()

	for _, r := range summary {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Method.String(), r.Width, r.N, r.Positive,
			nullFloat(r.Mean), nullFloat(r.Median), nullFloat(r.StdDev), nullFloat(r.PositiveShare),
			nullFloat(r.TStat), nullFloat(r.TPValue), nullFloat(r.SignPValue), nullFloat(r.RankPValue),
		); err != nil {
			return apperrors.NewStorageError("failed to insert summary row", err)
		}
	}
	return nil
}

func insertParams(ctx context.Context, tx *sql.Tx, runID string, params []eventstudy.FirmParams) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO firm_params
		(run_id, firm_id, alpha, beta, r2, resid_var, observations, mean_ret, mean_observations, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare params insert", err)
	}
	defer stmt.Close()

	for _, p := range params {
		if _, err := stmt.ExecContext(ctx,
			runID, p.FirmID,
			nullFloat(p.Alpha), nullFloat(p.Beta), nullFloat(p.RSquared), nullFloat(p.ResidualVariance),
			p.Observations, nullFloat(p.MeanReturn), p.MeanObservations, string(p.Status),
		); err != nil {
			return apperrors.NewStorageError("failed to insert firm params", err).WithContext("firm_id", p.FirmID)
		}
	}
	return nil
}

// LoadSummary returns the stored summary rows of a run, ordered by method and width
func (s *Store) LoadSummary(ctx context.Context, runID string) ([]eventstudy.SummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT method, width, n, positive, mean_car, median_car, sd_car,
		pct_positive, t_stat, t_p, sign_p, signed_rank_p
		FROM summary WHERE run_id = ?`, runID)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query summary", err)
	}
	defer rows.Close()

	var out []eventstudy.SummaryRow
	for rows.Next() {
		var (
			r      eventstudy.SummaryRow
			method string
			f      [8]sql.NullFloat64
		)
		if err := rows.Scan(&method, &r.Width, &r.N, &r.Positive,
			&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7]); err != nil {
			return nil, apperrors.NewStorageError("failed to scan summary row", err)
		}
		if r.Method, err = eventstudy.ParseMethod(method); err != nil {
			return nil, apperrors.NewStorageError("unknown stored method", err)
		}
		r.Mean, r.Median, r.StdDev, r.PositiveShare = toFloat(f[0]), toFloat(f[1]), toFloat(f[2]), toFloat(f[3])
		r.TStat, r.TPValue, r.SignPValue, r.RankPValue = toFloat(f[4]), toFloat(f[5]), toFloat(f[6]), toFloat(f[7])
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read summary", err)
	}

	sortSummary(out)
	return out, nil
}

// LoadParams returns the stored firm parameters of a run ordered by firm id
func (s *Store) LoadParams(ctx context.Context, runID string) ([]eventstudy.FirmParams, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT firm_id, alpha, beta, r2, resid_var, observations,
		mean_ret, mean_observations, status
		FROM firm_params WHERE run_id = ? ORDER BY firm_id`, runID)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query firm params", err)
	}
	defer rows.Close()

	var out []eventstudy.FirmParams
	for rows.Next() {
		var (
			p      eventstudy.FirmParams
			status string
			f      [5]sql.NullFloat64
		)
		if err := rows.Scan(&p.FirmID, &f[0], &f[1], &f[2], &f[3], &p.Observations,
			&f[4], &p.MeanObservations, &status); err != nil {
			return nil, apperrors.NewStorageError("failed to scan firm params", err)
		}
		p.Alpha, p.Beta, p.RSquared, p.ResidualVariance = toFloat(f[0]), toFloat(f[1]), toFloat(f[2]), toFloat(f[3])
		p.MeanReturn = toFloat(f[4])
		p.Status = eventstudy.ParamStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read firm params", err)
	}
	return out, nil
}

// Runs lists stored runs, newest first
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.run_id, r.created_at, r.events,
		(SELECT COUNT(*) FROM event_cars c WHERE c.run_id = r.run_id)
		FROM runs r ORDER BY r.created_at DESC, r.run_id`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query runs", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			created string
		)
		if err := rows.Scan(&info.RunID, &created, &info.Events, &info.CARs); err != nil {
			return nil, apperrors.NewStorageError("failed to scan run", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("invalid created_at for run %s", info.RunID), err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read runs", err)
	}
	return out, nil
}
