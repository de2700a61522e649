package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:skillproof.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/skillproof?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates all tables if missing. Exposed so tests can build
// the schema on an in-memory sqlite handle.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sub_themes (
  id TEXT PRIMARY KEY,
  category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  sub_theme_id TEXT NOT NULL REFERENCES sub_themes(id) ON DELETE CASCADE,
  difficulty_tier TEXT NOT NULL,
  question_type TEXT NOT NULL,
  question_text TEXT NOT NULL,
  rationale TEXT,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS answer_options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  option_text TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assessment_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  start_time INTEGER NOT NULL,
  end_time INTEGER,
  status TEXT NOT NULL,
  total_score REAL NOT NULL DEFAULT 0,
  total_possible_score REAL NOT NULL DEFAULT 0,
  completion_percentage REAL NOT NULL DEFAULT 0,
  question_ids TEXT NOT NULL,
  ip_address TEXT,
  user_agent TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON assessment_sessions(status);

CREATE TABLE IF NOT EXISTS user_responses (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  response_time INTEGER NOT NULL,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  dont_know BOOLEAN NOT NULL DEFAULT FALSE,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  score_earned REAL NOT NULL DEFAULT 0,
  UNIQUE (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS response_answers (
  id TEXT PRIMARY KEY,
  user_response_id TEXT NOT NULL REFERENCES user_responses(id) ON DELETE CASCADE,
  answer_option_id TEXT NOT NULL,
  UNIQUE (user_response_id, answer_option_id)
);

CREATE TABLE IF NOT EXISTS difficulty_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  difficulty_tier TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  single_choice_correct INTEGER NOT NULL DEFAULT 0,
  multiple_choice_correct INTEGER NOT NULL DEFAULT 0,
  bonus_earned BOOLEAN NOT NULL DEFAULT FALSE,
  score_earned REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, difficulty_tier)
);

CREATE TABLE IF NOT EXISTS category_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  category_id TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  score_earned REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, category_id)
);

CREATE TABLE IF NOT EXISTS sub_theme_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  sub_theme_id TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  score_earned REAL NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, sub_theme_id)
);

CREATE TABLE IF NOT EXISTS assessment_reports (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  report_type TEXT NOT NULL,
  generated_at INTEGER NOT NULL,
  blob_path TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sub_themes (
  id TEXT PRIMARY KEY,
  category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  sub_theme_id TEXT NOT NULL REFERENCES sub_themes(id) ON DELETE CASCADE,
  difficulty_tier TEXT NOT NULL,
  question_type TEXT NOT NULL,
  question_text TEXT NOT NULL,
  rationale TEXT,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS answer_options (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  option_text TEXT NOT NULL,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  display_order INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assessment_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  start_time BIGINT NOT NULL,
  end_time BIGINT,
  status TEXT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_possible_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  completion_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
  question_ids TEXT NOT NULL,
  ip_address TEXT,
  user_agent TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON assessment_sessions(status);

CREATE TABLE IF NOT EXISTS user_responses (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  response_time BIGINT NOT NULL,
  time_spent_seconds INTEGER NOT NULL DEFAULT 0,
  dont_know BOOLEAN NOT NULL DEFAULT FALSE,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  score_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
  UNIQUE (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS response_answers (
  id TEXT PRIMARY KEY,
  user_response_id TEXT NOT NULL REFERENCES user_responses(id) ON DELETE CASCADE,
  answer_option_id TEXT NOT NULL,
  UNIQUE (user_response_id, answer_option_id)
);

CREATE TABLE IF NOT EXISTS difficulty_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  difficulty_tier TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  single_choice_correct INTEGER NOT NULL DEFAULT 0,
  multiple_choice_correct INTEGER NOT NULL DEFAULT 0,
  bonus_earned BOOLEAN NOT NULL DEFAULT FALSE,
  score_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, difficulty_tier)
);

CREATE TABLE IF NOT EXISTS category_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  category_id TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  score_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, category_id)
);

CREATE TABLE IF NOT EXISTS sub_theme_progress (
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  sub_theme_id TEXT NOT NULL,
  questions_attempted INTEGER NOT NULL DEFAULT 0,
  questions_correct INTEGER NOT NULL DEFAULT 0,
  score_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (session_id, sub_theme_id)
);

CREATE TABLE IF NOT EXISTS assessment_reports (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES assessment_sessions(id) ON DELETE CASCADE,
  report_type TEXT NOT NULL,
  generated_at BIGINT NOT NULL,
  blob_path TEXT NOT NULL
);
`
