// Package store persists located targets so repeat lookups on the same
// screen can skip a vision round trip.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection holding target knowledge.
type Store struct {
	db *sql.DB
}

// Capture spaces a remembered center can live in. Centers from a viewport
// screenshot and centers from a canvas toDataURL read are different
// coordinate systems; recalling one as the other misplaces the click.
const (
	SpaceViewport = "viewport"
	SpaceCanvas   = "canvas"
)

// TargetRecord is a remembered target location on a given screen.
type TargetRecord struct {
	ScreenID    string  `json:"screenId"`
	Description string  `json:"description"`
	CenterX     float64 `json:"centerX"`
	CenterY     float64 `json:"centerY"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Label       string  `json:"label"`
	// Space names the capture space of the center (SpaceViewport or
	// SpaceCanvas); empty means SpaceViewport.
	Space    string    `json:"space"`
	Hits     int       `json:"hits"`
	LastSeen time.Time `json:"lastSeen"`
}

// New opens the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS targets (
		screen_id TEXT NOT NULL,
		description TEXT NOT NULL,
		center_x REAL NOT NULL,
		center_y REAL NOT NULL,
		width REAL DEFAULT 0,
		height REAL DEFAULT 0,
		confidence REAL DEFAULT 0,
		label TEXT,
		space TEXT NOT NULL DEFAULT 'viewport',
		hits INTEGER DEFAULT 1,
		last_seen TIMESTAMP NOT NULL,
		PRIMARY KEY (screen_id, description)
	);

	CREATE INDEX IF NOT EXISTS idx_targets_last_seen ON targets(last_seen DESC);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember upserts a target. An existing row for the same screen and
// description is overwritten and its hit count bumped.
func (s *Store) Remember(rec TargetRecord) error {
	query := `
		INSERT INTO targets (screen_id, description, center_x, center_y, width, height, confidence, label, space, hits, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(screen_id, description) DO UPDATE SET
			center_x = excluded.center_x,
			center_y = excluded.center_y,
			width = excluded.width,
			height = excluded.height,
			confidence = excluded.confidence,
			label = excluded.label,
			space = excluded.space,
			hits = hits + 1,
			last_seen = excluded.last_seen
	`
	lastSeen := rec.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}
	space := rec.Space
	if space == "" {
		space = SpaceViewport
	}
	_, err := s.db.Exec(query,
		rec.ScreenID, rec.Description,
		rec.CenterX, rec.CenterY, rec.Width, rec.Height,
		rec.Confidence, rec.Label, space, lastSeen,
	)
	return err
}

// Recall returns the remembered target for a screen and description, or nil
// when none exists or the record is older than maxAge.
func (s *Store) Recall(screenID, description string, maxAge time.Duration) (*TargetRecord, error) {
	query := `
		SELECT screen_id, description, center_x, center_y, width, height, confidence, label, space, hits, last_seen
		FROM targets
		WHERE screen_id = ? AND description = ?
	`

	var rec TargetRecord
	var label sql.NullString

	err := s.db.QueryRow(query, screenID, description).Scan(
		&rec.ScreenID,
		&rec.Description,
		&rec.CenterX,
		&rec.CenterY,
		&rec.Width,
		&rec.Height,
		&rec.Confidence,
		&label,
		&rec.Space,
		&rec.Hits,
		&rec.LastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if label.Valid {
		rec.Label = label.String
	}

	if maxAge > 0 && time.Since(rec.LastSeen) > maxAge {
		return nil, nil
	}

	return &rec, nil
}

// Forget removes a remembered target, typically after a click on the cached
// location failed to have an effect.
func (s *Store) Forget(screenID, description string) error {
	_, err := s.db.Exec(`DELETE FROM targets WHERE screen_id = ? AND description = ?`, screenID, description)
	return err
}

// ListScreen returns every remembered target on a screen, most recent first.
func (s *Store) ListScreen(screenID string) ([]TargetRecord, error) {
	query := `
		SELECT screen_id, description, center_x, center_y, width, height, confidence, label, space, hits, last_seen
		FROM targets
		WHERE screen_id = ?
		ORDER BY last_seen DESC
	`

	rows, err := s.db.Query(query, screenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []TargetRecord
	for rows.Next() {
		var rec TargetRecord
		var label sql.NullString

		err := rows.Scan(
			&rec.ScreenID,
			&rec.Description,
			&rec.CenterX,
			&rec.CenterY,
			&rec.Width,
			&rec.Height,
			&rec.Confidence,
			&label,
			&rec.Space,
			&rec.Hits,
			&rec.LastSeen,
		)
		if err != nil {
			return nil, err
		}

		if label.Valid {
			rec.Label = label.String
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
