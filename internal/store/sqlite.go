package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps meshes in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	log.WithField("path", path).Info("[Store] Database ready")
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// m is not closed here; that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger routes migration progress to logrus.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Debugf("[Store] migrate: "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return log.IsLevelEnabled(log.DebugLevel)
}

func (s *SQLiteStore) Save(m *Model) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Data == nil {
		m.Data = []byte{}
	}
	m.Size = len(m.Data)
	_, err := s.db.Exec(`
		INSERT INTO models (id, filename, data, views, vertices, triangles, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Filename, m.Data, m.Views, m.Vertices, m.Triangles, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*Model, error) {
	row := s.db.QueryRow(`
		SELECT id, filename, data, views, vertices, triangles, created_at
		FROM models WHERE id = ?`, id)

	var m Model
	var created int64
	err := row.Scan(&m.ID, &m.Filename, &m.Data, &m.Views, &m.Vertices, &m.Triangles, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	m.Size = len(m.Data)
	m.CreatedAt = time.Unix(0, created).UTC()
	return &m, nil
}

func (s *SQLiteStore) List(limit, offset int) ([]*Model, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT id, filename, length(data), views, vertices, triangles, created_at
		FROM models ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []*Model{}
	for rows.Next() {
		var m Model
		var created int64
		if err := rows.Scan(&m.ID, &m.Filename, &m.Size, &m.Views, &m.Vertices, &m.Triangles, &created); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		models = append(models, &m)
	}
	return models, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
