package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

// Table is a parsed CSV document with inferred column types. Row values are
// typed to match the columns: int64, float64, bool or string, and pointers to
// those (or nil) for nullable columns.
type Table struct {
	Columns []clickhouse.Column
	Rows    [][]any
}

// naValues are the field values read as null, matching pandas' read_csv defaults.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

type columnKind int

const (
	kindInt columnKind = iota
	kindFloat
	kindBool
	kindString
)

func (k columnKind) clickhouseType() string {
	switch k {
	case kindInt:
		return "Int64"
	case kindFloat:
		return "Float64"
	case kindBool:
		return "Bool"
	default:
		return "String"
	}
}

// ParseCSV reads a CSV document with a header row. Records with fewer fields
// than the header are padded with nulls; records with more are an error.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	names := columnNames(header)

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		if len(record) > len(names) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(names), len(record))
		}
		records = append(records, record)
	}

	kinds := make([]columnKind, len(names))
	nullable := make([]bool, len(names))
	for i := range names {
		kinds[i], nullable[i] = inferColumn(records, i)
	}

	table := &Table{
		Columns: make([]clickhouse.Column, len(names)),
		Rows:    make([][]any, len(records)),
	}
	for i, name := range names {
		typ := kinds[i].clickhouseType()
		if nullable[i] {
			typ = "Nullable(" + typ + ")"
		}
		table.Columns[i] = clickhouse.Column{Name: name, Type: typ}
	}
	for r, record := range records {
		row := make([]any, len(names))
		for i := range names {
			row[i] = convertField(field(record, i), kinds[i], nullable[i])
		}
		table.Rows[r] = row
	}
	return table, nil
}

// columnNames applies pandas' header rules: blank names become "Unnamed: <i>"
// and repeated names get a ".<n>" suffix.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		if n, dup := seen[h]; dup {
			for {
				n++
				name = fmt.Sprintf("%s.%d", h, n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[h] = n
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

func isNA(v string) bool {
	_, ok := naValues[v]
	return ok
}

func inferColumn(records [][]string, i int) (columnKind, bool) {
	kind := kindInt
	nullable := false
	values := 0
	for _, record := range records {
		v := field(record, i)
		if isNA(v) {
			nullable = true
			continue
		}
		values++
		for kind < kindString && !fitsKind(strings.TrimSpace(v), kind) {
			kind++
			// Earlier values were numeric, so the column cannot be boolean.
			if kind == kindBool && values > 1 {
				kind = kindString
			}
		}
	}
	if values == 0 {
		return kindString, true
	}
	return kind, nullable
}

func fitsKind(v string, kind columnKind) bool {
	switch kind {
	case kindInt:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case kindFloat:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case kindBool:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "false")
	default:
		return true
	}
}

func convertField(v string, kind columnKind, nullable bool) any {
	if isNA(v) {
		return nil
	}
	var value any
	trimmed := strings.TrimSpace(v)
	switch kind {
	case kindInt:
		n, _ := strconv.ParseInt(trimmed, 10, 64)
		if nullable {
			return &n
		}
		value = n
	case kindFloat:
		f, _ := strconv.ParseFloat(trimmed, 64)
		if nullable {
			return &f
		}
		value = f
	case kindBool:
		b := strings.EqualFold(trimmed, "true")
		if nullable {
			return &b
		}
		value = b
	default:
		if nullable {
			return &v
		}
		value = v
	}
	return value
}
