package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"ecommerce-dashboard/internal/models"
)

// TimestampLayout is the layout used when writing InvoiceDate.
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339,
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"2006-01-02",
}

type column struct {
	name     string
	required bool
	parse    func(rec *models.Record, value string) error
}

var schema = []column{
	{models.ColInvoiceNo, true, func(r *models.Record, v string) error { r.InvoiceNo = v; return nil }},
	{models.ColStockCode, true, func(r *models.Record, v string) error { r.StockCode = v; return nil }},
	{models.ColDescription, true, func(r *models.Record, v string) error { r.Description = v; return nil }},
	{models.ColQuantity, true, func(r *models.Record, v string) (err error) { r.Quantity, err = parseFloat32(v); return }},
	{models.ColUnitPrice, true, func(r *models.Record, v string) (err error) { r.UnitPrice, err = parseFloat32(v); return }},
	{models.ColCustomerID, true, func(r *models.Record, v string) error { r.CustomerID = v; return nil }},
	{models.ColCountry, true, func(r *models.Record, v string) error { r.Country = v; return nil }},
	{models.ColInvoiceDate, true, func(r *models.Record, v string) (err error) { r.InvoiceDate, err = parseTimestamp(v); return }},
	{models.ColTotalPrice, true, func(r *models.Record, v string) (err error) { r.TotalPrice, err = parseFloat32(v); return }},
	{models.ColMonth, false, parseMonth},
	{models.ColYear, false, parseYear},
	{models.ColCountryCode, false, func(r *models.Record, v string) error { r.CountryCode = v; return nil }},
}

var errNotFinite = errors.New("value is not a finite number")

func parseFloat32(v string) (float32, error) {
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return float32(f), nil
}

func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp layout")
}

func parseMonth(r *models.Record, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("2006-01", v); err != nil {
		return err
	}
	r.Month = v
	return nil
}

func parseYear(r *models.Record, v string) error {
	if v == "" {
		return nil
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	r.Year = y
	return nil
}

// rawRow is an unparsed data row with its 1-based line number.
type rawRow struct {
	line   int
	fields []string
}

// table is a header plus the raw rows of one delimited file.
type table struct {
	index   []int // schema position -> field position, -1 when absent
	columns []string
	rows    []rawRow
}

// readTable reads the whole delimited file, strips a UTF-8 BOM and maps the
// header onto the schema.
func readTable(r io.Reader, delimiter rune) (*table, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.TrimSpace(h)] = i
	}

	t := &table{index: make([]int, len(schema))}
	for i, col := range schema {
		pos, ok := positions[col.name]
		if !ok {
			if col.required {
				return nil, &SchemaError{Line: 1, Err: fmt.Errorf("missing column %q", col.name)}
			}
			t.index[i] = -1
			continue
		}
		t.index[i] = pos
		t.columns = append(t.columns, col.name)
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &SchemaError{Line: perr.Line, Err: perr.Err}
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, rawRow{line: line, fields: fields})
	}

	return t, nil
}

func (t *table) parseRow(row rawRow) (models.Record, error) {
	var rec models.Record
	for i, col := range schema {
		pos := t.index[i]
		if pos < 0 {
			continue
		}
		var value string
		if pos < len(row.fields) {
			value = strings.TrimSpace(row.fields[pos])
		}
		if err := col.parse(&rec, value); err != nil {
			return models.Record{}, &SchemaError{Line: row.line, Column: col.name, Value: value, Err: err}
		}
	}
	return rec, nil
}

// ReadCSV parses a delimited file sequentially. It is the inverse of WriteCSV.
func ReadCSV(r io.Reader) ([]models.Record, []string, error) {
	t, err := readTable(r, ',')
	if err != nil {
		return nil, nil, err
	}
	records := make([]models.Record, 0, len(t.rows))
	for _, row := range t.rows {
		rec, err := t.parseRow(row)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return records, t.columns, nil
}

// WriteCSV writes records with the source columns followed by whichever
// derived columns are listed in columns.
func WriteCSV(w io.Writer, records []models.Record, columns []string) error {
	header := slices.Clone(models.SourceColumns)
	for _, c := range models.DerivedColumns {
		if slices.Contains(columns, c) {
			header = append(header, c)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, c := range header {
			row[i] = formatField(rec, c)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", rec.InvoiceNo, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatField(rec models.Record, col string) string {
	switch col {
	case models.ColInvoiceNo:
		return rec.InvoiceNo
	case models.ColStockCode:
		return rec.StockCode
	case models.ColDescription:
		return rec.Description
	case models.ColQuantity:
		return formatFloat32(rec.Quantity)
	case models.ColUnitPrice:
		return formatFloat32(rec.UnitPrice)
	case models.ColCustomerID:
		return rec.CustomerID
	case models.ColCountry:
		return rec.Country
	case models.ColInvoiceDate:
		return rec.InvoiceDate.Format(TimestampLayout)
	case models.ColTotalPrice:
		return formatFloat32(rec.TotalPrice)
	case models.ColMonth:
		return rec.Month
	case models.ColYear:
		if rec.Year == 0 {
			return ""
		}
		return strconv.Itoa(rec.Year)
	case models.ColCountryCode:
		return rec.CountryCode
	default:
		return ""
	}
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}
