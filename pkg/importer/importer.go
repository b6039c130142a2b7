package importer

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"

	"inshokuten-api/internal/models"
)

//go:embed mapping/items.yaml
var defaultMapping []byte

// Store is the subset of the item store the importer writes through.
type Store interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, id *int64, name *string, price decimal.NullDecimal) (models.Item, error)
	Update(ctx context.Context, id int64, name *string, price decimal.NullDecimal) (bool, error)
}

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	MappingPath string // empty uses the embedded mapping
	DryRun      bool
	MaxErrors   int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// MappingConfig maps item fields to the header texts that may carry them.
type MappingConfig struct {
	Version int                 `yaml:"version"`
	Sheets  []string            `yaml:"sheets"` // empty means every sheet
	Columns map[string][]string `yaml:"columns"`
}

const maxSamples = 10

// LoadMapping reads a mapping file, or the embedded default when path is empty.
func LoadMapping(path string) (*MappingConfig, error) {
	data := defaultMapping
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	if len(m.Columns["id"]) == 0 && len(m.Columns["name"]) == 0 && len(m.Columns["price"]) == 0 {
		return nil, fmt.Errorf("mapping defines no id, name or price columns")
	}
	return &m, nil
}

func (m *MappingConfig) wantsSheet(name string) bool {
	if len(m.Sheets) == 0 {
		return true
	}
	for _, s := range m.Sheets {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// fieldFor returns the item field a header text maps to, or "".
func (m *MappingConfig) fieldFor(header string) string {
	header = strings.TrimSpace(header)
	for field, aliases := range m.Columns {
		for _, alias := range aliases {
			if strings.EqualFold(alias, header) {
				return field
			}
		}
	}
	return ""
}

// ImportExcel reads every mapped sheet and upserts one item per data row: an
// existing id is updated, anything else is created.
func ImportExcel(ctx context.Context, st Store, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	mapping, err := LoadMapping(opts.MappingPath)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	// xlsx needs random access, so the upload is buffered whole.
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	for _, sheet := range xlFile.Sheets {
		if !mapping.wantsSheet(sheet.Name) {
			continue
		}

		sheetSummary := processSheet(ctx, st, sheet, mapping, opts)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		summary.Inserted += sheetSummary.Inserted
		summary.Updated += sheetSummary.Updated
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}

	return summary, nil
}

type rowValues struct {
	id    *int64
	name  *string
	price decimal.NullDecimal
}

func processSheet(ctx context.Context, st Store, sheet *xlsx.Sheet, mapping *MappingConfig, opts ImportOptions) SheetSummary {
	summary := SheetSummary{Name: sheet.Name}
	fail := func(row int, err error) {
		summary.Errors++
		if len(summary.Samples) < maxSamples {
			summary.Samples = append(summary.Samples, RowError{Sheet: sheet.Name, Row: row, Message: err.Error()})
		}
	}

	if sheet.MaxRow == 0 {
		return summary
	}

	headerRow, err := sheet.Row(0)
	if err != nil {
		fail(1, fmt.Errorf("failed to read header row: %w", err))
		return summary
	}

	// column index -> item field
	columns := make(map[int]string)
	for c := 0; c < sheet.MaxCol; c++ {
		if field := mapping.fieldFor(headerRow.GetCell(c).String()); field != "" {
			columns[c] = field
		}
	}
	if len(columns) == 0 {
		fail(1, fmt.Errorf("no recognised columns in header row"))
		return summary
	}

	for rowIdx := 1; rowIdx < sheet.MaxRow; rowIdx++ {
		if err := ctx.Err(); err != nil {
			fail(rowIdx+1, err)
			return summary
		}

		row, err := sheet.Row(rowIdx)
		if err != nil || row == nil {
			// Rows absent from the file are blank.
			summary.Skipped++
			continue
		}

		cells := make(map[string]string, len(columns))
		for c, field := range columns {
			if v := strings.TrimSpace(row.GetCell(c).String()); v != "" {
				cells[field] = v
			}
		}
		if len(cells) == 0 {
			summary.Skipped++
			continue
		}

		vals, err := parseRow(cells)
		if err != nil {
			fail(rowIdx+1, err)
			continue
		}

		updated, err := upsert(ctx, st, vals, opts.DryRun)
		if err != nil {
			fail(rowIdx+1, err)
			continue
		}
		if updated {
			summary.Updated++
		} else {
			summary.Inserted++
		}
	}

	return summary
}

func parseRow(cells map[string]string) (rowValues, error) {
	var out rowValues

	if v, ok := cells["id"]; ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			// Spreadsheet numbers often arrive as "3.0".
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil || f != float64(int64(f)) {
				return out, fmt.Errorf("failed to parse id %q", v)
			}
			id = int64(f)
		}
		out.id = &id
	}

	if v, ok := cells["name"]; ok {
		out.name = &v
	}

	if v, ok := cells["price"]; ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return out, fmt.Errorf("failed to parse price %q: %v", v, err)
		}
		out.price = decimal.NewNullDecimal(d)
	}

	return out, nil
}

// upsert reports true when an existing row was (or, on a dry run, would be) updated.
func upsert(ctx context.Context, st Store, vals rowValues, dryRun bool) (bool, error) {
	if dryRun {
		if vals.id == nil {
			return false, nil
		}
		return st.Exists(ctx, *vals.id)
	}

	if vals.id != nil {
		changed, err := st.Update(ctx, *vals.id, vals.name, vals.price)
		if err != nil {
			return false, err
		}
		if changed {
			return true, nil
		}
	}

	if _, err := st.Create(ctx, vals.id, vals.name, vals.price); err != nil {
		return false, err
	}
	return false, nil
}
