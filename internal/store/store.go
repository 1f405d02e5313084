// Package store implements inventory persistence on Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waresync/waresync/internal/domain"
)

// Item is a single inventory row.
type Item struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Inventory is the storage contract consumed by the HTTP layer. Not-found
// is an explicit sentinel (domain.ErrItemNotFound), never a thrown-error
// control flow.
type Inventory interface {
	Create(ctx context.Context, name string, quantity int) (*Item, error)
	Get(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context) ([]Item, error)
	UpdateQuantity(ctx context.Context, id int64, quantity int) (*Item, error)
	Delete(ctx context.Context, id int64) error
}

// Store is the Postgres-backed inventory store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store with a connection pool against the given URL and
// verifies connectivity with a ping.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations applies any pending schema migrations. The migrations also
// install the notify trigger that feeds the relay.
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Create inserts a new inventory item and returns the stored row.
func (s *Store) Create(ctx context.Context, name string, quantity int) (*Item, error) {
	var item Item
	err := s.pool.QueryRow(ctx,
		`INSERT INTO inventory (name, quantity)
		 VALUES ($1, $2)
		 RETURNING id, name, quantity, updated_at`,
		name, quantity,
	).Scan(&item.ID, &item.Name, &item.Quantity, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return &item, nil
}

// Get fetches a single item by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	var item Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, quantity, updated_at
		 FROM inventory WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Name, &item.Quantity, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// List returns all items ordered by ID.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, quantity, updated_at
		 FROM inventory ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

// UpdateQuantity sets the quantity of an existing item. Only the quantity
// is mutable after creation.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, quantity int) (*Item, error) {
	var item Item
	err := s.pool.QueryRow(ctx,
		`UPDATE inventory SET quantity = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, quantity, updated_at`,
		id, quantity,
	).Scan(&item.ID, &item.Name, &item.Quantity, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return &item, nil
}

// Delete removes an item by ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inventory WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// Ensure Store implements Inventory.
var _ Inventory = (*Store)(nil)
