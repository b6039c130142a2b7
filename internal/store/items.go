// Package store provides transactional access to the item table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"inshokuten-api/internal/db"
	"inshokuten-api/internal/models"
)

// ItemStore issues one SQL statement per operation against a single table.
type ItemStore struct {
	db    *db.DB
	table string
	sb    sq.StatementBuilderType
}

// NewItemStore creates a store bound to the given table.
func NewItemStore(d *db.DB, table string) *ItemStore {
	return &ItemStore{
		db:    d,
		table: db.QuoteTable(table),
		sb:    sq.StatementBuilder.PlaceholderFormat(d.Dialect.Placeholder()),
	}
}

// Ping checks database connectivity.
func (s *ItemStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List returns every row in the store's default order.
func (s *ItemStore) List(ctx context.Context) ([]models.Item, error) {
	// Aliases pin the result column names, which Postgres would fold to lower case anyway.
	sqlStr, args, err := s.sb.Select("ID AS id", "Name AS name", "Price AS price").From(s.table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	items := []models.Item{}
	if err := s.db.SelectContext(ctx, &items, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// Exists reports whether a row with the given id is present.
func (s *ItemStore) Exists(ctx context.Context, id int64) (bool, error) {
	sqlStr, args, err := s.sb.Select("1").From(s.table).Where(sq.Eq{"ID": id}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("building exists query: %w", err)
	}

	var one int
	err = s.db.GetContext(ctx, &one, sqlStr, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up item %d: %w", id, err)
	}
	return true, nil
}

// Create inserts a row and returns it with the identity the store assigned.
// A nil id leaves the ID column to the store.
func (s *ItemStore) Create(ctx context.Context, id *int64, name *string, price decimal.NullDecimal) (models.Item, error) {
	q := s.sb.Insert(s.table)
	if id != nil {
		q = q.Columns("ID", "Name", "Price").Values(*id, name, price)
	} else {
		q = q.Columns("Name", "Price").Values(name, price)
	}
	sqlStr, args, err := q.Suffix("RETURNING ID").ToSql()
	if err != nil {
		return models.Item{}, fmt.Errorf("building insert query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Item{}, fmt.Errorf("starting insert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	out := models.Item{Name: name, Price: price}
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&out.ID); err != nil {
		return models.Item{}, fmt.Errorf("inserting item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Item{}, fmt.Errorf("committing insert: %w", err)
	}
	return out, nil
}

// Update sets name and price on the row with the given id. It reports whether
// any row matched; a miss is not an error.
func (s *ItemStore) Update(ctx context.Context, id int64, name *string, price decimal.NullDecimal) (bool, error) {
	sqlStr, args, err := s.sb.Update(s.table).
		Set("Name", name).
		Set("Price", price).
		Where(sq.Eq{"ID": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building update query: %w", err)
	}
	return s.execChanged(ctx, "update", sqlStr, args)
}

// Delete removes the row with the given id and reports whether one existed.
func (s *ItemStore) Delete(ctx context.Context, id int64) (bool, error) {
	sqlStr, args, err := s.sb.Delete(s.table).Where(sq.Eq{"ID": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("building delete query: %w", err)
	}
	return s.execChanged(ctx, "delete", sqlStr, args)
}

func (s *ItemStore) execChanged(ctx context.Context, op, sqlStr string, args []interface{}) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting %s transaction: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("%s item: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing %s: %w", op, err)
	}
	return n > 0, nil
}
