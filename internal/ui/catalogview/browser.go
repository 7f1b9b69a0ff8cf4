// Package catalogview is the terminal browser for backup artifacts.
package catalogview

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kadirbelkuyu/SQLBM/internal/catalog"
)

// Backend is the part of the service the browser drives.
type Backend interface {
	RefreshCatalog(dir string) ([]catalog.Record, catalog.Summary, error)
	DeleteArtifacts(records []catalog.Record) (catalog.BatchResult, error)
	CopyArtifacts(records []catalog.Record, destDir string) (catalog.BatchResult, error)
}

var columns = []string{"File", "Server", "Database", "Date", "Type", "Size"}

type browser struct {
	backend Backend
	dir     string

	app     *tview.Application
	pages   *tview.Pages
	table   *tview.Table
	status  *tview.TextView
	server  *tview.InputField
	db      *tview.InputField
	date    *tview.InputField
	records []catalog.Record
	visible []catalog.Record
}

// Run opens the browser on dir and blocks until the operator quits.
func Run(backend Backend, dir string) error {
	b := &browser{
		backend: backend,
		dir:     dir,
		app:     tview.NewApplication(),
		pages:   tview.NewPages(),
		table:   tview.NewTable().SetFixed(1, 0).SetSelectable(true, false),
		status:  tview.NewTextView().SetDynamicColors(true),
	}

	b.server = b.filterField("Server: ")
	b.db = b.filterField("Database: ")
	b.date = b.filterField("Date: ")

	filters := tview.NewFlex().
		AddItem(b.server, 0, 1, false).
		AddItem(b.db, 0, 1, false).
		AddItem(b.date, 0, 1, false)
	filters.SetBorder(true).SetTitle("Filter")

	b.table.SetBorder(true).SetTitle(fmt.Sprintf("Backups in %s", dir))
	b.status.SetBorder(true).SetTitle("Summary")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(filters, 3, 0, false).
		AddItem(b.table, 0, 1, true).
		AddItem(b.status, 4, 0, false)
	b.pages.AddPage("main", layout, true, true)

	b.app.SetRoot(b.pages, true).SetInputCapture(b.handleKey)
	b.refresh()

	if err := b.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (b *browser) filterField(label string) *tview.InputField {
	field := tview.NewInputField().SetLabel(label).SetFieldWidth(0)
	field.SetChangedFunc(func(string) { b.render() })
	field.SetDoneFunc(func(tcell.Key) { b.app.SetFocus(b.table) })
	return field
}

func (b *browser) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if b.pages.HasPage(modalName) {
		return event
	}
	if _, typing := b.app.GetFocus().(*tview.InputField); typing {
		if event.Key() == tcell.KeyEscape {
			b.app.SetFocus(b.table)
			return nil
		}
		return event
	}

	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 'q', 'Q':
		b.app.Stop()
	case 'r', 'R':
		b.refresh()
	case '/':
		b.app.SetFocus(b.server)
	case 'd', 'D':
		if record, ok := b.selected(); ok {
			b.confirmDelete(record)
		}
	case 'c', 'C':
		if record, ok := b.selected(); ok {
			b.promptCopy(record)
		}
	default:
		return event
	}
	return nil
}

func (b *browser) refresh() {
	records, _, err := b.backend.RefreshCatalog(b.dir)
	b.records = records
	b.render()
	if err != nil {
		b.status.SetText(fmt.Sprintf("[red]%v", err))
	}
}

func (b *browser) render() {
	b.visible = catalog.Filter(b.records, b.server.GetText(), b.db.GetText(), b.date.GetText())
	fillTable(b.table, b.visible)
	b.status.SetText(summaryText(catalog.Summarize(b.visible), len(b.records)))
}

func (b *browser) selected() (catalog.Record, bool) {
	row, _ := b.table.GetSelection()
	if row < 1 || row > len(b.visible) {
		return catalog.Record{}, false
	}
	return b.visible[row-1], true
}

func (b *browser) confirmDelete(record catalog.Record) {
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %s?", record.FileName)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			b.closeModal()
			if label != "Delete" {
				return
			}
			_, err := b.backend.DeleteArtifacts([]catalog.Record{record})
			b.refresh()
			b.report(err, fmt.Sprintf("Deleted %s", record.FileName))
		})
	b.pages.AddPage(modalName, modal, true, true)
}

func (b *browser) promptCopy(record catalog.Record) {
	input := tview.NewInputField().SetLabel("Destination: ").SetFieldWidth(60)
	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Copy", func() {
			dest := strings.TrimSpace(input.GetText())
			b.closeModal()
			if dest == "" {
				return
			}
			_, err := b.backend.CopyArtifacts([]catalog.Record{record}, dest)
			b.report(err, fmt.Sprintf("Copied %s to %s", record.FileName, dest))
		}).
		AddButton("Cancel", b.closeModal)
	form.SetBorder(true).SetTitle(fmt.Sprintf("Copy %s", record.FileName))

	b.pages.AddPage(modalName, newModal(form, 80, 7), true, true)
	b.app.SetFocus(input)
}

func (b *browser) closeModal() {
	b.pages.RemovePage(modalName)
	b.app.SetFocus(b.table)
}

func (b *browser) report(err error, success string) {
	summary := summaryText(catalog.Summarize(b.visible), len(b.records))
	if err != nil {
		b.status.SetText(fmt.Sprintf("%s\n[red]%v", summary, err))
		return
	}
	b.status.SetText(fmt.Sprintf("%s\n[green]%s", summary, success))
}

func fillTable(table *tview.Table, records []catalog.Record) {
	table.Clear()
	for i, col := range columns {
		cell := tview.NewTableCell(col).SetSelectable(false).SetAlign(tview.AlignCenter).SetAttributes(tcell.AttrBold)
		table.SetCell(0, i, cell)
	}
	for r, row := range recordRows(records) {
		for c, val := range row {
			cell := tview.NewTableCell(val).SetExpansion(1)
			if c == len(columns)-1 {
				cell.SetAlign(tview.AlignRight)
			}
			table.SetCell(r+1, c, cell)
		}
	}
	if len(records) > 0 {
		table.Select(1, 0)
	}
}

func recordRows(records []catalog.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.FileName, r.ServerName, r.DatabaseName, r.Date, r.Type.String(), catalog.HumanSize(r.SizeBytes)})
	}
	return rows
}

func summaryText(summary catalog.Summary, total int) string {
	return fmt.Sprintf("[::b]%d of %d backups[-:-:-], %s\n'/' filter • 'r' refresh • 'd' delete • 'c' copy • 'q' exit",
		summary.Count, total, catalog.HumanSize(summary.TotalBytes))
}

const modalName = "catalog-modal"

func newModal(content tview.Primitive, width, height int) tview.Primitive {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 10
	}

	return tview.NewGrid().
		SetRows(0, height, 0).
		SetColumns(0, width, 0).
		AddItem(content, 1, 1, 1, 1, 0, 0, true)
}
