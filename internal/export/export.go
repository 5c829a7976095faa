package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/richtext"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv (the default) and xlsx.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for an export taken on date (YYYY-MM-DD).
func (f Format) Filename(date string) string {
	return fmt.Sprintf("tickets_export_%s.%s", date, f)
}

// Header is the column set of every export.
var Header = []string{"ID", "Email", "Asunto", "Categoría", "Urgencia", "Estado", "Fecha Creación", "Respuesta"}

const sheetName = "Tickets"

// Row renders one ticket in Header order.
func Row(t domain.Ticket) []string {
	category := string(t.Category)
	if category == "" {
		category = "N/A"
	}
	created := "Pendiente"
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.Format("02/01/2006")
	}
	response := "Sin respuesta"
	if t.Response != nil && strings.TrimSpace(*t.Response) != "" {
		response = richtext.StripHTML(*t.Response)
	}
	return []string{
		t.ID,
		t.Email,
		t.Subject,
		category,
		string(t.Urgency),
		string(t.Status),
		created,
		response,
	}
}

// Write encodes tickets in format to w.
func Write(w io.Writer, format Format, tickets []domain.Ticket) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, tickets)
	case FormatCSV, "":
		return WriteCSV(w, tickets)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteCSV writes a header row followed by one row per ticket.
func WriteCSV(w io.Writer, tickets []domain.Ticket) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, t := range tickets {
		if err := writer.Write(Row(t)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes a single-sheet workbook.
func WriteXLSX(w io.Writer, tickets []domain.Ticket) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	for i, t := range tickets {
		if err := setRow(f, i+2, Row(t)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheetName, cell, &cells)
}
