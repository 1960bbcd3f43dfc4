package common

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// NewTable returns a table writer in the CLI's style that renders to w.
func NewTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}
