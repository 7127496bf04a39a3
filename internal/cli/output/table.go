package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCase = cases.Title(language.English)

// Title returns s in title case.
func Title(s string) string {
	return titleCase.String(s)
}

// Table prints rows under headers: a box table in text mode, a Markdown
// table otherwise.
func (r *Renderer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = Title(h)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, cell := range row {
			tr[i] = cell
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		r.Println("")
		return
	}
	t.Render()
}

// List prints one item per line, as Markdown bullets outside text mode.
func (r *Renderer) List(items []string) {
	if len(items) == 0 {
		r.Println(r.styles.Muted.Render("(none)"))
		return
	}
	bullet := ""
	if r.EffectiveMode() == ModeMarkdown {
		bullet = "- "
	}
	for _, item := range items {
		r.Println(bullet + item)
	}
}
