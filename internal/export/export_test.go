package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/repaart/support-desk/internal/domain"
)

func sampleTickets() []domain.Ticket {
	response := "<p>Revisado</p>"
	return []domain.Ticket{
		{
			ID:        "t1",
			Email:     "rider@repaart.es",
			Subject:   "Factura, duplicada",
			Category:  domain.TicketCategoryFinancial,
			Urgency:   domain.TicketUrgencyHigh,
			Status:    domain.TicketStatusPendingUser,
			CreatedAt: time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC),
			Response:  &response,
		},
		{ID: "t2", Subject: "Sin categoría", Urgency: domain.TicketUrgencyLow, Status: domain.TicketStatusOpen},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTickets()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"t1", "rider@repaart.es", "Factura, duplicada", "finanzas", "high", "pending_user", "07/03/2024", "Revisado"}, records[1])
	assert.Equal(t, []string{"t2", "", "Sin categoría", "N/A", "low", "open", "Pendiente", "Sin respuesta"}, records[2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleTickets()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "Factura, duplicada", rows[1][2])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Equal(t, "tickets_export_2024-05-01.xlsx", f.Filename("2024-05-01"))

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
