package kinds

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/core"
)

type captureInserter struct {
	table   string
	columns []string
	rows    [][]any
}

func (c *captureInserter) CopyRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	c.table = table
	c.columns = columns
	c.rows = append(c.rows, rows...)
	return int64(len(rows)), nil
}

func newEngine() *core.Engine {
	e := core.New(core.DefaultConfig())
	Install(e)
	return e
}

func csvOptions() core.ReadOptions {
	return core.ReadOptions{ReadOptions: codec.ReadOptions{Format: codec.FormatCSV}}
}

func TestRegisteredKinds(t *testing.T) {
	for _, key := range []string{"product", "customer", "contact"} {
		_, ok := core.Get(key)
		assert.True(t, ok, key)
	}

	contact, _ := core.Get("contact")
	assert.False(t, contact.Importable())
	product, _ := core.Get("product")
	assert.True(t, product.Importable())
	assert.Equal(t, "products", product.Info.Table)
}

func TestProductValidate(t *testing.T) {
	input := strings.Join([]string{
		"SKU,Product Name,Category,Unit Price,In Stock,Launch Date",
		`W-1,Widget,hardware,"$1,299.50",yes,2024-03-01`,
		"W-2,Gadget,,(12.00),,",
		"W-3,Broken,Toys,9.99,true,",
		",Nameless,Hardware,1.00,true,",
	}, "\n")

	k, ok := core.Get("product")
	require.True(t, ok)

	report, err := k.Validate(context.Background(), newEngine(), strings.NewReader(input), csvOptions())
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRows)
	assert.Equal(t, 2, report.ValidRows)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 3, report.Errors[0].Row)
	assert.Equal(t, 4, report.Errors[1].Row)

	require.Len(t, report.Preview, 2)
	assert.Equal(t, []string{"W-1", "Widget", "Hardware", "1299.50", "true", "2024-03-01", ""}, report.Preview[0])
	assert.Equal(t, "-12.00", report.Preview[1][3])
	assert.Equal(t, "Hardware", report.Preview[1][2])
}

func TestCustomerImport(t *testing.T) {
	input := strings.Join([]string{
		"Customer ID,Customer Name,State,Tier,Credit Limit,Customer Since",
		"C-1,Acme,california,gold,5000,2020-01-15",
		"C-2,Globex,ny,,,2021-06-01",
		"C-3,Initech,TX,Diamond,,",
	}, "\n")

	k, ok := core.Get("customer")
	require.True(t, ok)

	dst := &captureInserter{}
	res, err := k.Import(context.Background(), newEngine(), strings.NewReader(input), csvOptions(), dst)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, "customers", dst.table)
	assert.Equal(t, []string{
		"id", "name", "email", "state", "tier", "credit_limit", "customer_since", "active", UploadColumn,
	}, dst.columns)

	require.Len(t, dst.rows, 2)
	first := dst.rows[0]
	assert.Equal(t, "CA", first[3])
	assert.Equal(t, Tier(2), first[4])
	assert.Equal(t, 5000.0, first[5])
	assert.Equal(t, "2020-01-15", first[6].(convert.Date).String())
	assert.Equal(t, res.UploadID, first[8])

	second := dst.rows[1]
	assert.Equal(t, "NY", second[3])
	assert.Equal(t, Tier(0), second[4])
	assert.Nil(t, second[5])
}

func TestContactIsValidateOnly(t *testing.T) {
	k, ok := core.Get("contact")
	require.True(t, ok)

	_, err := k.Import(context.Background(), newEngine(), strings.NewReader("Customer ID,Full Name\nC-1,Ann\n"), csvOptions(), &captureInserter{})
	assert.ErrorIs(t, err, core.ErrNotImportable)
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"19.99", "19.99"},
		{"$1,299.00", "1299.00"},
		{"€ 5", "5"},
		{"(45.10)", "-45.10"},
		{" 7 ", "7"},
	}
	for _, tt := range tests {
		got, err := money{}.FromCell(tt.in, convert.Context{})
		require.NoError(t, err, tt.in)
		cell, err := money{}.ToCell(got)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cell, tt.in)
	}

	got, err := money{}.FromCell("   ", convert.Context{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = money{}.FromCell("twelve", convert.Context{})
	var convErr *convert.ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, moneyType, convErr.Type)

	cell, err := money{}.ToCell(pgtype.Numeric{})
	require.NoError(t, err)
	assert.Nil(t, cell)
}

func TestNormalizeUSState(t *testing.T) {
	tests := map[string]string{
		"California":           "CA",
		"  new york ":          "NY",
		"tx":                   "TX",
		"WA":                   "WA",
		"Ontario":              "Ontario",
		"District of Columbia": "DC",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeUSState(in), in)
	}
}
