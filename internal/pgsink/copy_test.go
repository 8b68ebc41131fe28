package pgsink

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rowbind/internal/convert"
)

type fakeDB struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
	err     error
}

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.table = table
	f.columns = columns
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		f.rows = append(f.rows, values)
		n++
	}
	return n, src.Err()
}

// fakeTx embeds pgx.Tx so only the methods under test need bodies.
type fakeTx struct {
	pgx.Tx
	fakeDB
	committed  bool
	rolledBack bool
}

func (t *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	return t.fakeDB.CopyFrom(ctx, table, columns, src)
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakePool struct{ tx *fakeTx }

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) { return p.tx, nil }

type tier int

func (tier) EnumValues() []string { return []string{"bronze", "silver", "gold"} }

type region string

func (region) EnumValues() []string { return []string{"EMEA", "APAC"} }

func TestValue(t *testing.T) {
	id := uuid.New()
	day := convert.NewDate(2024, time.March, 9)
	wall := convert.NewDateTime(2024, time.March, 9, 14, 30, 0, 0)
	at := convert.NewInstant(time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "abc", "abc"},
		{"int", 42, 42},
		{"uuid", id, id},
		{"date", day, pgtype.Date{Time: day.Time, Valid: true}},
		{"datetime", wall, pgtype.Timestamp{Time: wall.Time, Valid: true}},
		{"instant", at, pgtype.Timestamptz{Time: at.Time, Valid: true}},
		{"time of day", convert.NewTimeOfDay(1, 2, 3, 4000), pgtype.Time{Microseconds: 3723000004, Valid: true}},
		{"char", convert.Char('x'), "x"},
		{"big int", big.NewInt(12345), pgtype.Numeric{Int: big.NewInt(12345), Valid: true}},
		{"nil big int", (*big.Int)(nil), nil},
		{"int enum", tier(2), "gold"},
		{"int enum out of range", tier(7), int64(7)},
		{"string enum", region("APAC"), "APAC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Value(tt.in))
		})
	}
}

func TestCopyRows(t *testing.T) {
	db := &fakeDB{}
	c := New(db)

	n, err := c.CopyRows(context.Background(), "staging.orders", []string{"id", "tier"}, [][]any{
		{"A-1", tier(0)},
		{"A-2", tier(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, pgx.Identifier{"staging", "orders"}, db.table)
	assert.Equal(t, []string{"id", "tier"}, db.columns)
	assert.Equal(t, [][]any{{"A-1", "bronze"}, {"A-2", "silver"}}, db.rows)
}

func TestCopyRowsErrors(t *testing.T) {
	ctx := context.Background()

	n, err := New(&fakeDB{}).CopyRows(ctx, "orders", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = New(&fakeDB{}).CopyRows(ctx, "orders", []string{"id", "qty"}, [][]any{{"A-1"}})
	assert.ErrorContains(t, err, "row 1 has 1 values, expected 2")

	_, err = New(&fakeDB{}).CopyRows(ctx, "a.b.c", []string{"id"}, [][]any{{"A-1"}})
	assert.ErrorContains(t, err, "invalid table name")

	cause := errors.New("duplicate key value violates unique constraint")
	_, err = New(&fakeDB{err: cause}).CopyRows(ctx, "orders", []string{"id"}, [][]any{{"A-1"}})
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "copy into orders")
}

func TestIdentifier(t *testing.T) {
	id, err := Identifier("orders")
	require.NoError(t, err)
	assert.Equal(t, pgx.Identifier{"orders"}, id)

	for _, bad := range []string{"", ".orders", "public.", "a.b.c"} {
		_, err := Identifier(bad)
		assert.Error(t, err, bad)
	}
}

func TestInTx(t *testing.T) {
	ctx := context.Background()

	tx := &fakeTx{}
	err := InTx(ctx, &fakePool{tx: tx}, func(c *Copier) error {
		_, err := c.CopyRows(ctx, "orders", []string{"id"}, [][]any{{"A-1"}})
		return err
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Len(t, tx.rows, 1)

	tx = &fakeTx{}
	boom := errors.New("boom")
	err = InTx(ctx, &fakePool{tx: tx}, func(*Copier) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}
