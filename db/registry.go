package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// ArtifactRecord is one row of the artifact registry: a model bundle the
// service has fetched or verified at some point.
type ArtifactRecord struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// InitDB initializes the SQLite registry database.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS artifacts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        version TEXT NOT NULL,
        sha256 TEXT NOT NULL,
        size_bytes INTEGER NOT NULL,
        source TEXT,
        fetched_at DATETIME NOT NULL,
        UNIQUE(name, version)
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close releases the registry handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// RecordArtifact upserts the registry row for one artifact.
func RecordArtifact(rec ArtifactRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if rec.Name == "" || rec.Version == "" {
		return errors.New("artifact name and version required")
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO artifacts (name, version, sha256, size_bytes, source, fetched_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Version, rec.SHA256, rec.SizeBytes, rec.Source, rec.FetchedAt)
	return err
}

// GetArtifact returns the registry row for name/version, or nil when the
// artifact has never been recorded.
func GetArtifact(name, version string) (*ArtifactRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	var rec ArtifactRecord
	err := database.QueryRow(`
        SELECT name, version, sha256, size_bytes, source, fetched_at
        FROM artifacts
        WHERE name = ? AND version = ?`,
		name, version).Scan(&rec.Name, &rec.Version, &rec.SHA256, &rec.SizeBytes, &rec.Source, &rec.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListArtifacts returns all recorded artifacts, newest first.
func ListArtifacts() ([]ArtifactRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT name, version, sha256, size_bytes, source, fetched_at
        FROM artifacts
        ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ArtifactRecord, 0)
	for rows.Next() {
		var rec ArtifactRecord
		if err := rows.Scan(&rec.Name, &rec.Version, &rec.SHA256, &rec.SizeBytes, &rec.Source, &rec.FetchedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
