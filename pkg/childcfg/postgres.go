package childcfg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the child_config table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS child_config (
    id         BIGSERIAL PRIMARY KEY,
    child_age  INTEGER NOT NULL CHECK (child_age >= 5 AND child_age <= 10),
    pin_hash   TEXT NOT NULL,
    voice_id   TEXT NOT NULL DEFAULT 'de-DE-Standard-A',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. The table holds at most
// one row.
type PostgresStore struct {
	db DB
	v  Validator
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB, v Validator) *PostgresStore {
	return &PostgresStore{db: db, v: v}
}

// OpenPostgres connects a pool, applies [Schema] and returns the store
// together with the pool's close function.
func OpenPostgres(ctx context.Context, dsn string, v Validator) (*PostgresStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("childcfg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("childcfg: ping: %w", err)
	}
	s := NewPostgresStore(pool, v)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("childcfg: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, age int, pin, voiceID string) (*Configuration, error) {
	if voiceID == "" {
		voiceID = DefaultVoice
	}
	if err := s.v.create(age, pin, voiceID); err != nil {
		return nil, err
	}
	hash, err := hashPIN(pin)
	if err != nil {
		return nil, err
	}

	// The guarded insert keeps the table at one row without a lock.
	const query = `
		INSERT INTO child_config (child_age, pin_hash, voice_id)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM child_config)
		RETURNING id, child_age, voice_id, created_at, updated_at`

	cfg, err := scanConfig(s.db.QueryRow(ctx, query, age, hash, voiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("childcfg: create: %w", err)
	}
	return cfg, nil
}

// FetchChildConfiguration returns (nil, nil) when no configuration exists.
func (s *PostgresStore) FetchChildConfiguration(ctx context.Context) (*Configuration, error) {
	const query = `
		SELECT id, child_age, voice_id, created_at, updated_at
		FROM child_config
		ORDER BY id
		LIMIT 1`

	cfg, err := scanConfig(s.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("childcfg: fetch: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) AuthenticatePIN(ctx context.Context, pin string) (bool, error) {
	if !ValidPIN(pin) {
		return false, nil
	}
	var hash string
	err := s.db.QueryRow(ctx, `SELECT pin_hash FROM child_config ORDER BY id LIMIT 1`).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("childcfg: authenticate: %w", err)
	}
	return checkPIN(hash, pin), nil
}

func (s *PostgresStore) UpdateConfiguration(ctx context.Context, pin string, u Update) (*Configuration, error) {
	if err := s.v.update(u); err != nil {
		return nil, err
	}
	current, err := s.FetchChildConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoUser
	}
	ok, err := s.AuthenticatePIN(ctx, pin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadPIN
	}

	sets := []string{"updated_at = now()"}
	args := []any{current.ID}
	if u.ChildAge != nil {
		args = append(args, *u.ChildAge)
		sets = append(sets, fmt.Sprintf("child_age = $%d", len(args)))
	}
	if u.VoiceID != nil {
		args = append(args, *u.VoiceID)
		sets = append(sets, fmt.Sprintf("voice_id = $%d", len(args)))
	}
	query := `UPDATE child_config SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1
		RETURNING id, child_age, voice_id, created_at, updated_at`

	cfg, err := scanConfig(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoUser
		}
		return nil, fmt.Errorf("childcfg: update: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM child_config`); err != nil {
		return fmt.Errorf("childcfg: delete: %w", err)
	}
	return nil
}

func scanConfig(row pgx.Row) (*Configuration, error) {
	var cfg Configuration
	if err := row.Scan(&cfg.ID, &cfg.ChildAge, &cfg.VoiceID, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}
