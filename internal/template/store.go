package template

// #region imports
import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion imports

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS templates (
	agent_id        TEXT PRIMARY KEY,
	vector          BLOB NOT NULL,
	created_at      TEXT NOT NULL,
	last_evolved_at TEXT NOT NULL,
	evolution_count INTEGER NOT NULL DEFAULT 0,
	stability       REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS template_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id        TEXT NOT NULL,
	vector          BLOB NOT NULL,
	created_at      TEXT NOT NULL,
	last_evolved_at TEXT NOT NULL,
	evolution_count INTEGER NOT NULL,
	stability       REAL NOT NULL,
	archived_at     TEXT NOT NULL,
	FOREIGN KEY (agent_id) REFERENCES templates(agent_id)
);

CREATE INDEX IF NOT EXISTS idx_history_agent ON template_history(agent_id, id);

CREATE TABLE IF NOT EXISTS decision_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id     TEXT NOT NULL,
	agent_id        TEXT,
	outcome         TEXT NOT NULL,
	confidence      REAL NOT NULL,
	similarity      REAL,
	validation_json TEXT,
	evolution       TEXT,
	reason          TEXT,
	latency_ns      INTEGER NOT NULL,
	digest          TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists templates and their bounded history in SQLite.
type Store struct {
	db         *sql.DB
	historyCap int
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database, runs migrations and returns a Store
// keeping at most historyCap archived templates per agent.
func NewStore(dbPath string, historyCap int) (*Store, error) {
	if historyCap <= 0 {
		historyCap = 10
	}
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
	return &Store{db: db, historyCap: historyCap}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// decision log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region enroll

// Enroll registers an agent's first template. Fails with ErrExists when
// the agent already has one.
func (s *Store) Enroll(ctx context.Context, t Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates WHERE agent_id = ?`, t.AgentID,
	).Scan(&count); err != nil {
		return fmt.Errorf("check agent: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("enroll %s: %w", t.AgentID, ErrExists)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (agent_id, vector, created_at, last_evolved_at, evolution_count, stability)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.AgentID, encodeVector(t.Vector),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.LastEvolvedAt.UTC().Format(time.RFC3339Nano),
		t.EvolutionCount, t.Stability,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return tx.Commit()
}

// #endregion enroll

// #region load

// Load reads an agent's active template.
func (s *Store) Load(ctx context.Context, agentID string) (Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, vector, created_at, last_evolved_at, evolution_count, stability
		 FROM templates WHERE agent_id = ?`, agentID,
	)
	t, err := scanTemplate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("load %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return Template{}, fmt.Errorf("load %s: %w", agentID, err)
	}
	return t, nil
}

// LoadHistory returns an agent's archived templates, oldest first.
func (s *Store) LoadHistory(ctx context.Context, agentID string) ([]Archived, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, vector, created_at, last_evolved_at, evolution_count, stability, archived_at
		 FROM template_history WHERE agent_id = ? ORDER BY id`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", agentID, err)
	}
	defer rows.Close()

	var history []Archived
	for rows.Next() {
		var a Archived
		var vecBlob []byte
		var createdStr, evolvedStr, archivedStr string
		if err := rows.Scan(&a.HistoryID, &a.Template.AgentID, &vecBlob, &createdStr,
			&evolvedStr, &a.Template.EvolutionCount, &a.Template.Stability, &archivedStr); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		vec, err := decodeVector(vecBlob)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", agentID, err)
		}
		a.Template.Vector = vec
		a.Template.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		a.Template.LastEvolvedAt, _ = time.Parse(time.RFC3339Nano, evolvedStr)
		a.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archivedStr)
		history = append(history, a)
	}
	return history, rows.Err()
}

// #endregion load

// #region save

// Save replaces the agent's active template, optionally archiving the
// displaced one, all in one transaction. History beyond the cap is
// pruned oldest-first in the same transaction.
func (s *Store) Save(ctx context.Context, next Template, archive *Template) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if archive != nil {
		if err := s.pushHistory(ctx, tx, *archive, time.Now().UTC()); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE templates SET vector = ?, last_evolved_at = ?, evolution_count = ?, stability = ?
		 WHERE agent_id = ?`,
		encodeVector(next.Vector),
		next.LastEvolvedAt.UTC().Format(time.RFC3339Nano),
		next.EvolutionCount, next.Stability, next.AgentID,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("save %s: %w", next.AgentID, ErrNotFound)
	}
	return tx.Commit()
}

func (s *Store) pushHistory(ctx context.Context, tx *sql.Tx, t Template, archivedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO template_history (agent_id, vector, created_at, last_evolved_at, evolution_count, stability, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.AgentID, encodeVector(t.Vector),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.LastEvolvedAt.UTC().Format(time.RFC3339Nano),
		t.EvolutionCount, t.Stability,
		archivedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM template_history WHERE agent_id = ? AND id NOT IN (
			SELECT id FROM template_history WHERE agent_id = ? ORDER BY id DESC LIMIT ?
		)`,
		t.AgentID, t.AgentID, s.historyCap,
	)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// #endregion save

// #region rollback

// Rollback restores a history entry as the active template, byte for
// byte as archived. The displaced active template is archived so the
// rollback itself can be undone.
func (s *Store) Rollback(ctx context.Context, agentID string, historyID int64) (Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Template{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT agent_id, vector, created_at, last_evolved_at, evolution_count, stability
		 FROM template_history WHERE id = ? AND agent_id = ?`, historyID, agentID,
	)
	restored, err := scanTemplate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("history entry %d for %s: %w", historyID, agentID, ErrNotFound)
	}
	if err != nil {
		return Template{}, fmt.Errorf("read history entry: %w", err)
	}

	row = tx.QueryRowContext(ctx,
		`SELECT agent_id, vector, created_at, last_evolved_at, evolution_count, stability
		 FROM templates WHERE agent_id = ?`, agentID,
	)
	current, err := scanTemplate(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("rollback %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return Template{}, fmt.Errorf("read active template: %w", err)
	}

	if err := s.pushHistory(ctx, tx, current, time.Now().UTC()); err != nil {
		return Template{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE templates SET vector = ?, last_evolved_at = ?, evolution_count = ?, stability = ?
		 WHERE agent_id = ?`,
		encodeVector(restored.Vector),
		restored.LastEvolvedAt.UTC().Format(time.RFC3339Nano),
		restored.EvolutionCount, restored.Stability, agentID,
	)
	if err != nil {
		return Template{}, fmt.Errorf("restore template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Template{}, fmt.Errorf("commit: %w", err)
	}
	return restored, nil
}

// #endregion rollback

// #region agents

// Agents lists all enrolled agent IDs in lexical order.
func (s *Store) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id FROM templates ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}

// #endregion agents

// #region scan

type scanFunc func(dest ...any) error

func scanTemplate(scan scanFunc) (Template, error) {
	var t Template
	var vecBlob []byte
	var createdStr, evolvedStr string
	if err := scan(&t.AgentID, &vecBlob, &createdStr, &evolvedStr, &t.EvolutionCount, &t.Stability); err != nil {
		return Template{}, err
	}
	vec, err := decodeVector(vecBlob)
	if err != nil {
		return Template{}, err
	}
	t.Vector = vec
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	t.LastEvolvedAt, _ = time.Parse(time.RFC3339Nano, evolvedStr)
	return t, nil
}

// #endregion scan

// #region vector-encoding

func encodeVector(v [128]float32) []byte {
	buf := make([]byte, 128*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector rejects blobs of the wrong length: a dimensionality
// mismatch means the stored template is corrupt, never guessed around.
func decodeVector(b []byte) ([128]float32, error) {
	var v [128]float32
	if len(b) != 128*4 {
		return v, fmt.Errorf("vector blob is %d bytes, want %d: %w", len(b), 128*4, ErrCorrupt)
	}
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// #endregion vector-encoding
