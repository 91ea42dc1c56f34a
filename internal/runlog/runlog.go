package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-epoch
// LogEpoch writes an epoch summary to the epoch_log table.
func LogEpoch(db *sql.DB, entry EpochEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO epoch_log (run_id, epoch, phase, scale, summary_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Epoch, entry.Phase, entry.Scale, string(summary),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log epoch: %w", err)
	}
	return nil
}

// #endregion log-epoch

// #region log-transition
// LogTransition writes a scheduler decision to the scale_transitions table.
func LogTransition(db *sql.DB, entry TransitionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var metric any
	if entry.Metric != nil {
		metric = *entry.Metric
	}

	_, err := db.Exec(
		`INSERT INTO scale_transitions (run_id, epoch, phase, action, reason, scale_before, scale_after, metric, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Epoch, entry.Phase, entry.Action, nullIfEmpty(entry.Reason),
		entry.ScaleBefore, entry.ScaleAfter, metric, entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log transition: %w", err)
	}
	return nil
}

// #endregion log-transition

// #region list
// ListEpochs returns the logged epochs of a run for one phase, oldest first.
func ListEpochs(db *sql.DB, runID, phase string) ([]EpochEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, epoch, phase, scale, summary_json, created_at
		 FROM epoch_log WHERE run_id = ? AND phase = ? ORDER BY id`, runID, phase,
	)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer rows.Close()

	var out []EpochEntry
	for rows.Next() {
		var e EpochEntry
		var summary, created string
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.Phase, &e.Scale, &summary, &created); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		if err := json.Unmarshal([]byte(summary), &e.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListTransitions returns the scheduler decisions of a run, oldest first.
func ListTransitions(db *sql.DB, runID string) ([]TransitionEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, epoch, phase, action, reason, scale_before, scale_after, metric, created_at
		 FROM scale_transitions WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionEntry
	for rows.Next() {
		var e TransitionEntry
		var reason sql.NullString
		var metric sql.NullFloat64
		var created string
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.Phase, &e.Action, &reason,
			&e.ScaleBefore, &e.ScaleAfter, &metric, &created); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		e.Reason = reason.String
		if metric.Valid {
			v := metric.Float64
			e.Metric = &v
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRuns returns the distinct run ids in the epoch log, most recent first.
func ListRuns(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT run_id FROM epoch_log GROUP BY run_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion list

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
