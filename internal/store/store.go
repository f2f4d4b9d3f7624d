// Package store provides SQL-backed persistence for analysis runs. The
// backend is chosen by DSN: a plain path or ":memory:" opens SQLite,
// "postgres://" uses pgx, and "mysql://" the MySQL driver. Structured
// columns are stored as JSON text so the schema is identical everywhere.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/depgraph"
	"github.com/shikhar1verma/code-architecture-mapper/internal/deps"
	"github.com/shikhar1verma/code-architecture-mapper/internal/gitfetch"
)

// ErrNotFound is returned when a run or its results do not exist.
var ErrNotFound = errors.New("store: not found")

// Run statuses.
const (
	StatusPending   = "pending"
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunInfo is the lightweight run record served to pollers.
type RunInfo struct {
	ID        string
	RepoURL   string
	Status    string
	Progress  string
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RepoInfo identifies the analyzed repository revision.
type RepoInfo struct {
	URL           string `json:"url"`
	CommitSHA     string `json:"commit_sha"`
	Owner         string `json:"owner,omitempty"`
	Name          string `json:"name,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// Metrics bundles the graph with its derived data for persistence.
type Metrics struct {
	CentralFiles       []string        `json:"central_files"`
	Graph              *depgraph.Graph `json:"graph"`
	DependencyAnalysis *deps.Analysis  `json:"dependency_analysis"`
}

// Artifacts holds the generated text outputs.
type Artifacts struct {
	ArchitectureMD         string `json:"architecture_md"`
	MermaidModules         string `json:"mermaid_modules"`
	MermaidModulesSimple   string `json:"mermaid_modules_simple"`
	MermaidModulesBalanced string `json:"mermaid_modules_balanced"`
	MermaidModulesDetailed string `json:"mermaid_modules_detailed"`
	MermaidFolders         string `json:"mermaid_folders"`
}

// TokenBudget accounts the model usage of a run.
type TokenBudget struct {
	EmbedCalls int `json:"embed_calls"`
	GenCalls   int `json:"gen_calls"`
	Chunks     int `json:"chunks"`
}

// Results is the persisted artifact of a completed run.
type Results struct {
	Status        string              `json:"status"`
	Repo          RepoInfo            `json:"repo"`
	LanguageStats map[string]float64  `json:"language_stats"`
	LinesTotal    int                 `json:"loc_total"`
	FileCount     int                 `json:"file_count"`
	Metrics       Metrics             `json:"metrics"`
	Components    []content.Component `json:"components"`
	Artifacts     Artifacts           `json:"artifacts"`
	TokenBudget   TokenBudget         `json:"token_budget"`
}

// RepoInfoFromSnapshot fills a RepoInfo from a fetched snapshot.
func RepoInfoFromSnapshot(url string, snap *gitfetch.Snapshot) RepoInfo {
	return RepoInfo{
		URL:           url,
		CommitSHA:     snap.CommitSHA,
		Owner:         snap.Meta.Owner,
		Name:          snap.Meta.Name,
		DefaultBranch: snap.Meta.DefaultBranch,
	}
}

// Store wraps the runs table.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the backend selected by dsn and ensures the schema.
func Open(dsn string) (*Store, error) {
	driver, connStr := driverFor(dsn)
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func driverFor(dsn string) (driver, connStr string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	default:
		return "sqlite", dsn
	}
}

func (s *Store) createTables() error {
	stmt := `CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		repo_url        TEXT NOT NULL,
		status          TEXT NOT NULL,
		progress_status TEXT,
		message         TEXT,
		results         TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort as text in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string { return time.Now().UTC().Format(timestampLayout) }

// CreateRun inserts a new pending run and returns its identifier.
func (s *Store) CreateRun(ctx context.Context, repoURL string) (string, error) {
	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, repo_url, status, progress_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		id, normalizeURL(repoURL), StatusPending, "Analysis request received", ts, ts)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// UpdateStatus sets the run's status and, when non-empty, its progress
// label and message.
func (s *Store) UpdateStatus(ctx context.Context, id, status, progress, message string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE runs SET status = ?,
		        progress_status = CASE WHEN ? = '' THEN progress_status ELSE ? END,
		        message = CASE WHEN ? = '' THEN message ELSE ? END,
		        updated_at = ?
		 WHERE id = ?`),
		status, progress, progress, message, message, now(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResults stores the serialized results for a run. Idempotent per run:
// a repeated save overwrites the same row.
func (s *Store) SaveResults(ctx context.Context, id string, results *Results) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE runs SET results = ?, status = ?, updated_at = ? WHERE id = ?`),
		string(data), results.Status, now(), id)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadResults returns the run's persisted results.
func (s *Store) LoadResults(ctx context.Context, id string) (*Results, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT results FROM runs WHERE id = ?`), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if !data.Valid || data.String == "" {
		return nil, ErrNotFound
	}
	var results Results
	if err := json.Unmarshal([]byte(data.String), &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &results, nil
}

// GetRun returns the lightweight run record.
func (s *Store) GetRun(ctx context.Context, id string) (*RunInfo, error) {
	return s.scanRun(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, repo_url, status, progress_status, message, created_at, updated_at
		 FROM runs WHERE id = ?`), id))
}

// LookupLatestByURL returns the most recent run for a repository URL.
func (s *Store) LookupLatestByURL(ctx context.Context, repoURL string) (*RunInfo, error) {
	return s.scanRun(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, repo_url, status, progress_status, message, created_at, updated_at
		 FROM runs WHERE repo_url = ? ORDER BY created_at DESC LIMIT 1`),
		normalizeURL(repoURL)))
}

func (s *Store) scanRun(row *sql.Row) (*RunInfo, error) {
	var info RunInfo
	var progress, message sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&info.ID, &info.RepoURL, &info.Status, &progress, &message, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	info.Progress = progress.String
	info.Message = message.String
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &info, nil
}

// normalizeURL canonicalizes a repository URL for cache lookups.
func normalizeURL(repoURL string) string {
	u := strings.TrimSpace(repoURL)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return u
}
