package importer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"inshokuten-api/internal/models"
	"inshokuten-api/internal/store"
	"inshokuten-api/internal/testutil"
)

func workbook(t *testing.T, sheetName string, rows [][]string) *bytes.Buffer {
	t.Helper()

	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sh.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func newStore(t *testing.T) *store.ItemStore {
	t.Helper()
	return store.NewItemStore(testutil.NewTestDB(t), testutil.TestTable)
}

func TestImportExcelUpsertsRows(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	_, err := st.Create(ctx, nil, models.StringPtr("Coffee"), models.NewPrice(300))
	require.NoError(t, err)

	buf := workbook(t, "Menu", [][]string{
		{"ID", "名前", "価格"},
		{"1", "Coffee", "350"},
		{"2", "Tea", "250"},
		{"", "", ""},
		{"", "Juice", "180.5"},
	})

	sum, err := ImportExcel(ctx, st, buf, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Errors)
	require.Len(t, sum.Sheets, 1)
	assert.Equal(t, "Menu", sum.Sheets[0].Name)

	items, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	byName := map[string]models.Item{}
	for _, it := range items {
		byName[*it.Name] = it
	}
	assert.Equal(t, int64(1), byName["Coffee"].ID)
	assert.Equal(t, "350", byName["Coffee"].Price.Decimal.String())
	assert.Equal(t, int64(2), byName["Tea"].ID)
	assert.Equal(t, "180.5", byName["Juice"].Price.Decimal.String())
}

func TestImportExcelDryRunWritesNothing(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	_, err := st.Create(ctx, nil, models.StringPtr("Coffee"), models.NewPrice(300))
	require.NoError(t, err)

	buf := workbook(t, "Sheet1", [][]string{
		{"Price", "Name", "ID"},
		{"350", "Coffee", "1"},
		{"250", "Tea", "2"},
	})

	sum, err := ImportExcel(ctx, st, buf, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, sum.DryRun)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Inserted)

	items, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "300", items[0].Price.Decimal.String())
}

func TestImportExcelRowErrors(t *testing.T) {
	st := newStore(t)

	buf := workbook(t, "Sheet1", [][]string{
		{"ID", "Name", "Price"},
		{"abc", "Bad id", "1"},
		{"3", "Bad price", "cheap"},
		{"4", "Good", "10"},
	})

	sum, err := ImportExcel(context.Background(), st, buf, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Errors)
	assert.Equal(t, 1, sum.Inserted)
	require.Len(t, sum.Sheets[0].Samples, 2)
	assert.Equal(t, 2, sum.Sheets[0].Samples[0].Row)
	assert.Contains(t, sum.Sheets[0].Samples[1].Message, "price")
}

func TestImportExcelStopsAfterMaxErrors(t *testing.T) {
	st := newStore(t)

	buf := workbook(t, "Sheet1", [][]string{
		{"ID", "Price"},
		{"x", "1"},
		{"y", "1"},
	})

	_, err := ImportExcel(context.Background(), st, buf, ImportOptions{MaxErrors: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many errors")
}

func TestImportExcelRejectsGarbage(t *testing.T) {
	_, err := ImportExcel(context.Background(), newStore(t), bytes.NewBufferString("not a workbook"), ImportOptions{})
	assert.Error(t, err)
}

func TestLoadMapping(t *testing.T) {
	t.Run("embedded default", func(t *testing.T) {
		m, err := LoadMapping("")
		require.NoError(t, err)
		assert.Equal(t, "name", m.fieldFor(" 名前 "))
		assert.Equal(t, "price", m.fieldFor("PRICE"))
		assert.Equal(t, "", m.fieldFor("Colour"))
		assert.True(t, m.wantsSheet("anything"))
	})

	t.Run("file with sheet filter", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1\nsheets: [Menu]\ncolumns:\n  name: [Dish]\n"), 0o644))

		m, err := LoadMapping(path)
		require.NoError(t, err)
		assert.Equal(t, "name", m.fieldFor("dish"))
		assert.True(t, m.wantsSheet("menu"))
		assert.False(t, m.wantsSheet("Other"))
	})

	t.Run("empty mapping", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

		_, err := LoadMapping(path)
		assert.Error(t, err)
	})
}
