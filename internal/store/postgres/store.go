package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/store"
)

// ErrInvalidDSN is returned by Open for a blank DSN.
var ErrInvalidDSN = errors.New("postgres dsn is required")

// Options configures the Postgres store.
type Options struct {
	Table        string        // table name, DefaultTable when empty
	MinReconnect time.Duration // listener reconnect backoff floor
	MaxReconnect time.Duration // listener reconnect backoff ceiling
	FeedBuffer   int           // per-subscription notification buffer
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Table) == "" {
		o.Table = DefaultTable
	}
	if o.MinReconnect <= 0 {
		o.MinReconnect = 1 * time.Second
	}
	if o.MaxReconnect < o.MinReconnect {
		o.MaxReconnect = 30 * time.Second
		if o.MaxReconnect < o.MinReconnect {
			o.MaxReconnect = o.MinReconnect
		}
	}
	if o.FeedBuffer <= 0 {
		o.FeedBuffer = 64
	}
	return o
}

// Store keeps links in a Postgres table. A trigger turns every committed
// insert and delete into a NOTIFY on the owner's channel.
type Store struct {
	db     *sql.DB
	dsn    string
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

var _ store.Backend = (*Store)(nil)

// Open connects, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string, opts Options, log logger.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	opts = opts.withDefaults()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrate(ctx, db, opts.Table); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("postgres store ready", logger.String("table", opts.Table))

	return &Store{
		db:     db,
		dsn:    dsn,
		opts:   opts,
		logger: log,
		now:    time.Now,
	}, nil
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Create(ctx context.Context, ownerID, url, title string) (domain.Item, error) {
	item, err := store.NewItem(ownerID, url, title, s.now())
	if err != nil {
		return domain.Item{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, url, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, pq.QuoteIdentifier(s.opts.Table))
	if err := s.db.QueryRowContext(ctx, query, item.ID, item.OwnerID, item.URL, item.Title).Scan(&item.CreatedAt); err != nil {
		return domain.Item{}, fmt.Errorf("failed to save link: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()

	return item, nil
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1 AND id = $2`, pq.QuoteIdentifier(s.opts.Table))
	res, err := s.db.ExecContext(ctx, query, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, url, title, created_at
		FROM %s
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`, pq.QuoteIdentifier(s.opts.Table))

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.URL, &item.Title, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	return items, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
