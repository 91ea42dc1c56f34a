package checkpoint

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoCheckpoint is returned when no checkpoint is active yet.
var ErrNoCheckpoint = errors.New("no active checkpoint")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS generator_checkpoints (
	checkpoint_id TEXT PRIMARY KEY,
	parent_id     TEXT,
	run_id        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	latent        INTEGER NOT NULL,
	output_size   INTEGER NOT NULL,
	params        BLOB NOT NULL,
	scale         REAL NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES generator_checkpoints(checkpoint_id)
);

CREATE TABLE IF NOT EXISTS epoch_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	phase         TEXT NOT NULL,
	scale         REAL NOT NULL,
	summary_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scale_transitions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	phase         TEXT NOT NULL,
	action        TEXT NOT NULL,
	reason        TEXT,
	scale_before  REAL NOT NULL,
	scale_after   REAL NOT NULL,
	metric        REAL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	checkpoint_id TEXT NOT NULL,
	FOREIGN KEY (checkpoint_id) REFERENCES generator_checkpoints(checkpoint_id)
);
`

// #endregion schema

// #region store-struct
// Store manages generator checkpoints in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the run log.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region save
// Save inserts a checkpoint and makes it the active one atomically. An empty
// ID is replaced by a fresh uuid; a zero CreatedAt by the current time. The
// stored record is returned.
func (s *Store) Save(ck Checkpoint) (Checkpoint, error) {
	if ck.ID == "" {
		ck.ID = uuid.New().String()
	}
	if ck.CreatedAt.IsZero() {
		ck.CreatedAt = time.Now().UTC()
	}
	if len(ck.Params) != ck.Latent*ck.OutputSize+ck.OutputSize {
		return Checkpoint{}, fmt.Errorf("save checkpoint: %d params for shape %dx%d", len(ck.Params), ck.Latent, ck.OutputSize)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO generator_checkpoints
		 (checkpoint_id, parent_id, run_id, epoch, latent, output_size, params, scale, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ck.ID, nullIfEmpty(ck.ParentID), ck.RunID, ck.Epoch, ck.Latent, ck.OutputSize,
		encodeParams(ck.Params), ck.Scale, ck.CreatedAt.Format(time.RFC3339Nano), nullIfEmpty(ck.MetricsJSON),
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_checkpoint (id, checkpoint_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET checkpoint_id = excluded.checkpoint_id`,
		ck.ID,
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, fmt.Errorf("commit: %w", err)
	}
	return ck, nil
}

// #endregion save

// #region get-current
// GetCurrent reads the active checkpoint. ErrNoCheckpoint when none was saved.
func (s *Store) GetCurrent() (Checkpoint, error) {
	var id string
	err := s.db.QueryRow(`SELECT checkpoint_id FROM active_checkpoint WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get active: %w", err)
	}
	return s.Get(id)
}

// #endregion get-current

// #region get
// Get retrieves a checkpoint by ID.
func (s *Store) Get(id string) (Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT checkpoint_id, parent_id, run_id, epoch, latent, output_size, params, scale, created_at, metrics_json
		 FROM generator_checkpoints WHERE checkpoint_id = ?`, id,
	)
	ck, err := scanCheckpoint(row)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get checkpoint %s: %w", id, err)
	}
	return ck, nil
}

// #endregion get

// #region activate
// Activate points the active checkpoint at an earlier one.
func (s *Store) Activate(id string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM generator_checkpoints WHERE checkpoint_id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check checkpoint: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("checkpoint %s not found", id)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_checkpoint (id, checkpoint_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET checkpoint_id = excluded.checkpoint_id`, id,
	)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	return nil
}

// #endregion activate

// #region list
// List returns the most recent checkpoints, newest first. Params are not
// loaded.
func (s *Store) List(limit int) ([]Checkpoint, error) {
	rows, err := s.db.Query(
		`SELECT checkpoint_id, parent_id, run_id, epoch, latent, output_size, X'', scale, created_at, metrics_json
		 FROM generator_checkpoints ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		ck, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, ck)
	}
	return out, rows.Err()
}

// #endregion list

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(r scanner) (Checkpoint, error) {
	var ck Checkpoint
	var parentID, metricsJSON sql.NullString
	var blob []byte
	var createdStr string

	err := r.Scan(&ck.ID, &parentID, &ck.RunID, &ck.Epoch, &ck.Latent, &ck.OutputSize,
		&blob, &ck.Scale, &createdStr, &metricsJSON)
	if err != nil {
		return Checkpoint{}, err
	}
	if parentID.Valid {
		ck.ParentID = parentID.String
	}
	if metricsJSON.Valid {
		ck.MetricsJSON = metricsJSON.String
	}
	if len(blob) > 0 {
		ck.Params = decodeParams(blob)
	}
	ck.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return ck, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion scan

// #region param-encoding
func encodeParams(p []float64) []byte {
	buf := make([]byte, len(p)*8)
	for i, f := range p {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeParams(b []byte) []float64 {
	p := make([]float64, len(b)/8)
	for i := range p {
		p[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return p
}

// #endregion param-encoding
