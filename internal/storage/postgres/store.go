// Package postgres persists scraped records, looked-up players and run
// bookkeeping in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrRunNotFound signals that the requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Default table names.
const (
	DefaultRecordsTable = "category_records"
	DefaultPlayersTable = "players"
	DefaultRunsTable    = "runs"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	RecordsTable    string
	PlayersTable    string
	RunsTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes pipeline output and run rows into Postgres.
type Store struct {
	pool    pool
	records string
	players string
	runs    string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	s := &Store{
		pool:    p,
		records: orDefault(cfg.RecordsTable, DefaultRecordsTable),
		players: orDefault(cfg.PlayersTable, DefaultPlayersTable),
		runs:    orDefault(cfg.RunsTable, DefaultRunsTable),
	}
	for _, table := range []string{s.records, s.players, s.runs} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id     text        NOT NULL,
	account    text        NOT NULL,
	category   text        NOT NULL,
	rank       integer     NOT NULL,
	username   text        NOT NULL,
	score      bigint      NOT NULL,
	level      integer     NOT NULL DEFAULT 0,
	scraped_at timestamptz NOT NULL,
	PRIMARY KEY (run_id, category, rank)
)`, s.records),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id       text        NOT NULL,
	username     text        NOT NULL,
	account      text        NOT NULL,
	rank         integer     NOT NULL,
	total_level  integer     NOT NULL,
	total_xp     bigint      NOT NULL,
	combat_level real        NOT NULL,
	stats        jsonb       NOT NULL,
	fetched_at   timestamptz NOT NULL,
	PRIMARY KEY (run_id, username)
)`, s.players),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            text        PRIMARY KEY,
	command       text        NOT NULL,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text        NOT NULL,
	items         integer     NOT NULL DEFAULT 0,
	error_message text
)`, s.runs),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// StoreRecords inserts one page worth of leaderboard rows in a single
// statement.
func (s *Store) StoreRecords(
	ctx context.Context,
	runID string,
	account hiscore.AccountType,
	category hiscore.Category,
	records []hiscore.CategoryRecord,
	scrapedAt time.Time,
) error {
	if len(records) == 0 {
		return nil
	}
	const cols = 8
	var (
		sb   strings.Builder
		args = make([]any, 0, len(records)*cols)
	)
	fmt.Fprintf(&sb, "INSERT INTO %s (run_id, account, category, rank, username, score, level, scraped_at) VALUES ", s.records)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, runID, string(account), category.Name, r.Rank, r.Username, r.Score, r.Level, scrapedAt)
	}
	sb.WriteString(" ON CONFLICT (run_id, category, rank) DO NOTHING")

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return nil
}

// StorePlayer inserts one looked-up player.
func (s *Store) StorePlayer(ctx context.Context, runID string, account hiscore.AccountType, rec *hiscore.PlayerRecord) error {
	if rec == nil {
		return fmt.Errorf("player record is required")
	}
	stats, err := json.Marshal(struct {
		Skills map[string]hiscore.SkillInfo `json:"skills"`
		Misc   map[string]hiscore.MiscInfo  `json:"misc"`
	}{rec.Skills, rec.Misc})
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	username,
	account,
	rank,
	total_level,
	total_xp,
	combat_level,
	stats,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (run_id, username) DO NOTHING`, s.players)

	args := []any{
		runID,
		rec.Username,
		string(account),
		rec.Rank,
		rec.TotalLevel,
		rec.TotalXP,
		rec.CombatLevel,
		stats,
		rec.Timestamp,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

// Run models one row of the runs table.
type Run struct {
	ID           string
	Command      string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       crawler.RunStatus
	Items        int
	ErrorMessage *string
}

// StartRun records a run as running.
func (s *Store) StartRun(ctx context.Context, runID, command string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, command, started_at, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status`, s.runs)
	if _, err := s.pool.Exec(ctx, query, runID, command, startedAt, string(crawler.RunStatusRunning)); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *Store) CompleteRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	status crawler.RunStatus,
	items int,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, items = $3, error_message = $4
WHERE id = $5`, s.runs)
	res, err := s.pool.Exec(ctx, query, finishedAt, string(status), items, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	query := fmt.Sprintf(`
SELECT id, command, started_at, finished_at, status, items, error_message
FROM %s
WHERE id = $1`, s.runs)
	var (
		run    Run
		status string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Command,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Items,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = crawler.RunStatus(status)
	return run, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
