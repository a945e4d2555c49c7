// Package history persists observations and intervention decisions to
// SQLite so past runs can be inspected and replayed.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Thunderblok/thunderline-sub016/internal/irope"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	tick        INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	plv         REAL NOT NULL,
	sigma       REAL NOT NULL,
	lambda      REAL NOT NULL,
	rtau        REAL NOT NULL,
	band        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_domain_tick ON observations(domain, tick);

CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	tick        INTEGER NOT NULL,
	alerts_json TEXT NOT NULL,
	action      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_domain_tick ON decisions(domain, tick);
`

// #endregion schema

// #region store

// Store is the SQLite observation archive. It satisfies the monitor's
// ArchiveSink contract.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
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

// #endregion store

// #region append

// AppendObservation persists one sampled observation.
func (s *Store) AppendObservation(domain string, obs monitor.Observation) error {
	_, err := s.db.Exec(
		`INSERT INTO observations (id, domain, tick, recorded_at, plv, sigma, lambda, rtau, band)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), domain, obs.Tick, obs.Timestamp.Format(time.RFC3339Nano),
		obs.PLV, obs.Sigma, obs.Lambda, obs.RTau, string(obs.Bands.Overall),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// AppendDecision persists the alerts raised by one observation and the
// intervention chosen for them.
func (s *Store) AppendDecision(domain string, tick int64, alerts []monitor.Alert, action irope.Action) error {
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO decisions (id, domain, tick, alerts_json, action, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), domain, tick, string(alertsJSON), string(action),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// #endregion append

// #region query

// Decision is one archived intervention record.
type Decision struct {
	Domain    string
	Tick      int64
	Alerts    []monitor.Alert
	Action    irope.Action
	CreatedAt time.Time
}

// Domains lists every domain present in the archive.
func (s *Store) Domains() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT domain FROM observations ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// Observations returns a domain's archived observations in tick order.
// limit <= 0 returns all of them.
func (s *Store) Observations(domain string, limit int) ([]monitor.Observation, error) {
	q := `SELECT tick, recorded_at, plv, sigma, lambda, rtau, band
	      FROM observations WHERE domain = ? ORDER BY tick`
	args := []any{domain}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []monitor.Observation
	for rows.Next() {
		var obs monitor.Observation
		var recordedAt, band string
		if err := rows.Scan(&obs.Tick, &recordedAt, &obs.PLV, &obs.Sigma, &obs.Lambda, &obs.RTau, &band); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		obs.Bands = monitor.Bands{Overall: monitor.Band(band)}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Decisions returns a domain's archived decisions in tick order.
// limit <= 0 returns all of them.
func (s *Store) Decisions(domain string, limit int) ([]Decision, error) {
	q := `SELECT domain, tick, alerts_json, action, created_at
	      FROM decisions WHERE domain = ? ORDER BY tick`
	args := []any{domain}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var alertsJSON, action, createdAt string
		if err := rows.Scan(&d.Domain, &d.Tick, &alertsJSON, &action, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(alertsJSON), &d.Alerts); err != nil {
			return nil, fmt.Errorf("unmarshal alerts: %w", err)
		}
		d.Action = irope.Action(action)
		d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// #endregion query
