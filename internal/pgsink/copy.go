// Package pgsink loads mapped records into PostgreSQL with COPY.
package pgsink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DBTX is the subset of pgx used for COPY.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// TxBeginner starts transactions. Satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Copier writes row batches with COPY FROM STDIN.
type Copier struct {
	db DBTX
}

// New returns a Copier writing through db.
func New(db DBTX) *Copier {
	return &Copier{db: db}
}

// CopyRows copies rows into table. The table name may be schema qualified
// ("staging.orders"). Values are converted with Value.
func (c *Copier) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ident, err := Identifier(table)
	if err != nil {
		return 0, err
	}
	converted := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("copy into %s: row %d has %d values, expected %d", table, i+1, len(row), len(columns))
		}
		converted[i] = Row(row)
	}

	n, err := c.db.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(converted))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Identifier splits a possibly schema-qualified table name.
func Identifier(table string) (pgx.Identifier, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}

// InTx runs fn with a Copier bound to a new transaction. The transaction
// commits when fn returns nil and rolls back otherwise, so a failed import
// leaves no partial rows behind.
func InTx(ctx context.Context, pool TxBeginner, fn func(*Copier) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(New(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
