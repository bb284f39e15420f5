package gtfs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	TypeInt   string = "int"
	TypeFloat string = "float"
	TypeText  string = "text"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name    string
	Columns []Column
	Rows    [][]string
	// Skipped counts the rows that could not be parsed
	Skipped int
}

// ReadTable loads a staged GTFS table. Rows that cannot be parsed are skipped.
func (s *Stage) ReadTable(name string) (Table, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open table %s: %w", name, err)
	}
	defer f.Close()

	return Read(name, f)
}

func Read(name string, r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	t := Table{Name: name}

	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		t.Columns = append(t.Columns, Column{Name: strings.TrimSpace(h)})
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Skipped++
			continue
		}

		t.Rows = append(t.Rows, record)
	}

	for i := range t.Columns {
		t.Columns[i].Type = t.inferType(i)
	}

	return t, nil
}

// inferType picks the narrowest type that fits every non empty value in a column
func (t Table) inferType(column int) string {
	columnType := ""

	for _, row := range t.Rows {
		if column >= len(row) || row[column] == "" {
			continue
		}

		switch valueType(row[column]) {
		case TypeText:
			return TypeText
		case TypeFloat:
			columnType = TypeFloat
		case TypeInt:
			if columnType == "" {
				columnType = TypeInt
			}
		}
	}

	if columnType == "" {
		return TypeText
	}

	return columnType
}

func valueType(value string) string {
	if isDigits(value) {
		// identifiers such as stop codes keep their leading zeros
		if len(value) > 1 && value[0] == '0' {
			return TypeText
		}
		return TypeInt
	}

	if decimal.MatchString(value) {
		return TypeFloat
	}

	return TypeText
}

var decimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Records converts the rows to values of the inferred column types. Missing
// and empty values become nil.
func (t Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))

	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))

		for i, c := range t.Columns {
			if i >= len(row) || row[i] == "" {
				record[c.Name] = nil
				continue
			}

			record[c.Name] = convert(row[i], c.Type)
		}

		records = append(records, record)
	}

	return records
}

func convert(value, columnType string) any {
	switch columnType {
	case TypeInt:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	return value
}

// primaryKeys identify a row of each table so that repeated loads replace rows
var primaryKeys = map[string][]string{
	"agency":         {"agency_id"},
	"calendar":       {"service_id"},
	"calendar_dates": {"service_id", "date"},
	"frequencies":    {"trip_id", "start_time"},
	"routes":         {"route_id"},
	"shapes":         {"shape_id", "shape_pt_sequence"},
	"stop_times":     {"trip_id", "stop_sequence"},
	"stops":          {"stop_id"},
	"trips":          {"trip_id"},
}

// PrimaryKey returns the key columns of the table, or nil when the table is
// unknown or lacks one of them.
func (t Table) PrimaryKey() []string {
	keys, ok := primaryKeys[t.Name]
	if !ok {
		return nil
	}

	for _, k := range keys {
		if !t.HasColumn(k) {
			return nil
		}
	}

	return keys
}

func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
