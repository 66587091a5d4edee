// Package format renders CLI output as JSON or aligned text tables.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes one JSON document per call.
type JSONFormatter struct {
	Indent string
}

func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(payload)
}

// Table is a header plus rows of cells.
type Table struct {
	Header []string
	Rows   [][]string
}

func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// TextFormatter aligns a Table into columns. Other payloads are printed with %v.
type TextFormatter struct{}

func (TextFormatter) Write(w io.Writer, payload any) error {
	var table *Table
	switch v := payload.(type) {
	case Table:
		table = &v
	case *Table:
		table = v
	default:
		_, err := fmt.Fprintf(w, "%v\n", payload)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(table.Header) > 0 {
		if _, err := fmt.Fprintln(tw, strings.Join(table.Header, "\t")); err != nil {
			return err
		}
	}
	for _, row := range table.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
