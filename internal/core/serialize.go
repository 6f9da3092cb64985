package core

import (
	"encoding/csv"
	"io"
	"strings"
)

// Serialize renders the dataset as CSV for prompt embedding. The header is the
// field list of the first record and every row is projected onto it: absent
// fields render empty and fields the first record lacks are dropped. Records
// are separated by "\n" with no trailing newline. An empty dataset yields "".
// Only values containing a comma, a quote or a newline are quoted, so leading
// spaces and carriage returns pass through unchanged.
func Serialize(d Dataset) (string, error) {
	if len(d) == 0 {
		return "", nil
	}
	columns := d[0].FieldNames()
	var b strings.Builder
	writePromptRow(&b, columns)
	row := make([]string, len(columns))
	for _, rec := range d {
		for i, column := range columns {
			v, _ := rec.Get(column)
			row[i] = v.String()
		}
		b.WriteByte('\n')
		writePromptRow(&b, row)
	}
	return b.String(), nil
}

func writePromptRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(f, ",\"\n") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(f)
	}
}

// WriteCSV writes a header row of columns followed by one row per record
// using encoding/csv quoting. Null and absent values are empty.
func WriteCSV(w io.Writer, d Dataset, columns []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, rec := range d {
		for i, column := range columns {
			v, _ := rec.Get(column)
			row[i] = v.String()
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
