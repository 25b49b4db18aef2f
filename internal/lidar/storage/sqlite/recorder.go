package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/lidar.sections/internal/lidar/network"
	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/supervisor"
)

// Run is one stored harness run.
type Run struct {
	RunID     string     `json:"run_id"`
	DeviceKey string     `json:"device_key"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Receives  int64      `json:"receives"`
	Points    int64      `json:"points"`
	Demoted   int64      `json:"demoted"`
	Sections  int64      `json:"sections"`
}

// StoredSection is one recorded section with its summary.
type StoredSection struct {
	SectionID  int64            `json:"section_id"`
	RunID      string           `json:"run_id"`
	DeviceKey  string           `json:"device_key"`
	Summary    sections.Summary `json:"summary"`
	Points     []sections.Point `json:"points"`
	ReceivedAt time.Time        `json:"received_at"`
}

// Recorder writes runs and sections. It implements supervisor.Sink and
// supervisor.RunObserver.
type Recorder struct {
	db *DB
}

var (
	_ supervisor.Sink        = (*Recorder)(nil)
	_ supervisor.RunObserver = (*Recorder)(nil)
)

// NewRecorder creates a Recorder backed by db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// RunStarted inserts the run row.
func (r *Recorder) RunStarted(ctx context.Context, key, runID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO section_runs (run_id, device_key, started_at) VALUES (?, ?, ?)`,
		runID, key, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// RunEnded closes the run row with its outcome and counters.
func (r *Recorder) RunEnded(ctx context.Context, key, runID string, at time.Time, outcome sections.Outcome, st sections.Stats) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE section_runs
		SET ended_at = ?, outcome = ?, receives = ?, points = ?, demoted = ?, sections = ?
		WHERE run_id = ?
	`, at.UnixNano(), outcome.String(), st.Receives, st.Points, st.Demoted, st.Sections, runID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s for %s not found", runID, key)
	}
	return nil
}

// HandleSection inserts one section.
func (r *Recorder) HandleSection(ctx context.Context, rec supervisor.Record) error {
	sum := sections.Summarise(rec.Event.Section)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sections (
			run_id, device_key, sector, point_count,
			min_len, max_len, mean_len, stddev_len,
			points, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID, rec.Key, sum.Sector, sum.Count,
		sum.MinLen, sum.MaxLen, sum.MeanLen, sum.StdDevLen,
		network.EncodeDatagram(rec.Event.Section.Points), rec.Event.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert section %d of run %s: %w", sum.Sector, rec.RunID, err)
	}
	return nil
}

// Runs lists the most recent runs, newest first. An empty key lists every
// device.
func (r *Recorder) Runs(ctx context.Context, key string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, device_key, started_at, ended_at, outcome,
		       receives, points, demoted, sections
		FROM section_runs
		WHERE ? = '' OR device_key = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, key, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			started int64
			ended   sql.NullInt64
			outcome sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.DeviceKey, &started, &ended, &outcome,
			&run.Receives, &run.Points, &run.Demoted, &run.Sections); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			run.EndedAt = &t
		}
		run.Outcome = outcome.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Sections returns the sections of one run in the order they completed.
func (r *Recorder) Sections(ctx context.Context, runID string) ([]StoredSection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT section_id, run_id, device_key, sector, point_count,
		       min_len, max_len, mean_len, stddev_len, points, received_at
		FROM sections
		WHERE run_id = ?
		ORDER BY section_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StoredSection
	for rows.Next() {
		var (
			s        StoredSection
			packed   []byte
			received int64
		)
		if err := rows.Scan(&s.SectionID, &s.RunID, &s.DeviceKey, &s.Summary.Sector, &s.Summary.Count,
			&s.Summary.MinLen, &s.Summary.MaxLen, &s.Summary.MeanLen, &s.Summary.StdDevLen,
			&packed, &received); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		s.Points, _ = network.DecodeDatagram(nil, packed)
		s.ReceivedAt = time.Unix(0, received).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
