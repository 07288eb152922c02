package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/origin"
)

// SQL dialects
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS domain_mappings (
	domain     TEXT PRIMARY KEY,
	site_id    BIGINT NOT NULL,
	scheme     INTEGER NOT NULL DEFAULT 0,
	active     INTEGER NOT NULL DEFAULT 1,
	updated_at BIGINT NOT NULL
)`

// SQLStore keeps mappings in a domain_mappings table on sqlite or postgres.
type SQLStore struct {
	db        *sql.DB
	dialect   string
	writeLock *sync.Mutex // modernc sqlite does not support concurrent writes
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens dsn with the driver for dialect and creates the schema.
func NewSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	store, err := NewSQLStoreFromDB(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an open database and creates the schema.
func NewSQLStoreFromDB(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.LogDebugWithFields("registry", "Domain mapping schema ready", map[string]any{
		"dialect": dialect,
	})
	return &SQLStore{db: db, dialect: dialect, writeLock: new(sync.Mutex)}, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, domain string) (*Mapping, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT domain, site_id, scheme, active, updated_at FROM domain_mappings WHERE domain = ?"),
		origin.NormalizeHost(domain))

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select mapping: %w", err)
	}
	return m, nil
}

func (s *SQLStore) Put(ctx context.Context, m Mapping) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO domain_mappings (domain, site_id, scheme, active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			site_id = excluded.site_id,
			scheme = excluded.scheme,
			active = excluded.active,
			updated_at = excluded.updated_at`),
		origin.NormalizeHost(m.Domain), m.SiteID, boolToInt(m.ForceSSL), boolToInt(m.Active), m.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, domain string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM domain_mappings WHERE domain = ?"), origin.NormalizeHost(domain)); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT domain, site_id, scheme, active, updated_at FROM domain_mappings ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetSSLCapability(ctx context.Context, domain string, secure bool) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE domain_mappings SET scheme = ?, updated_at = ? WHERE domain = ?"),
		boolToInt(secure), time.Now().Unix(), origin.NormalizeHost(domain))
	if err != nil {
		return fmt.Errorf("update scheme: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scheme: %w", err)
	}
	if n == 0 {
		return ErrDomainNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*Mapping, error) {
	var (
		m       Mapping
		scheme  int
		active  int
		updated int64
	)
	if err := row.Scan(&m.Domain, &m.SiteID, &scheme, &active, &updated); err != nil {
		return nil, err
	}
	m.ForceSSL = scheme != 0
	m.Active = active != 0
	m.UpdatedAt = time.Unix(updated, 0)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
