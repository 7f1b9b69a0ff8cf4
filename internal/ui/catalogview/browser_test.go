package catalogview

import (
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/SQLBM/internal/catalog"
)

var sample = []catalog.Record{
	{FileName: "SRV1_SalesDB_20240115_083000.bak", ServerName: "SRV1", DatabaseName: "SalesDB", Date: "15.01.2024", Type: catalog.Full, SizeBytes: 2048, ModifiedAt: time.Now()},
	{FileName: "SRV1_Orders_20240116_083000_DIFF.bak", ServerName: "SRV1", DatabaseName: "Orders", Date: "16.01.2024", Type: catalog.Differential, SizeBytes: 512},
}

func TestRecordRows(t *testing.T) {
	rows := recordRows(sample)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"SRV1_SalesDB_20240115_083000.bak", "SRV1", "SalesDB", "15.01.2024", "Full", "2.00 KB"}, rows[0])
	assert.Equal(t, "Differential", rows[1][4])
	assert.Len(t, rows[0], len(columns))
}

func TestSummaryText(t *testing.T) {
	text := summaryText(catalog.Summarize(sample[:1]), 2)
	assert.Contains(t, text, "1 of 2 backups")
	assert.Contains(t, text, "2.00 KB")
}

func TestFillTableSelectsFirstRecord(t *testing.T) {
	table := tview.NewTable().SetSelectable(true, false)
	fillTable(table, sample)

	assert.Equal(t, 3, table.GetRowCount())
	assert.Equal(t, "Database", table.GetCell(0, 2).Text)
	row, _ := table.GetSelection()
	assert.Equal(t, 1, row)

	b := &browser{table: table, visible: sample}
	record, ok := b.selected()
	require.True(t, ok)
	assert.Equal(t, "SalesDB", record.DatabaseName)

	fillTable(table, nil)
	b.visible = nil
	_, ok = b.selected()
	assert.False(t, ok)
}

func TestNewModalDefaults(t *testing.T) {
	assert.NotNil(t, newModal(tview.NewBox(), 0, 0))
}
