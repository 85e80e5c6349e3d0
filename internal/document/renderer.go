package document

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// Renderer turns an application record into a printable document.
type Renderer interface {
	Render(app *domain.Application, agent *domain.Profile, issuedAt time.Time) ([]byte, error)
}

// PDFRenderer renders clearance and history documents with fpdf.
type PDFRenderer struct {
	Issuer string
}

func NewPDFRenderer(issuer string) *PDFRenderer {
	if issuer == "" {
		issuer = "Port Clearance Office"
	}
	return &PDFRenderer{Issuer: issuer}
}

func (r *PDFRenderer) Render(app *domain.Application, agent *domain.Profile, issuedAt time.Time) ([]byte, error) {
	if app == nil {
		return nil, fmt.Errorf("render: application required")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(issuedAt)
	pdf.SetTitle(fmt.Sprintf("Clearance %s", app.ID), false)
	pdf.SetAuthor(r.Issuer, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, r.Issuer, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s clearance", titleCase(string(app.Type))), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Application", app.ID},
		{"Status", string(app.Status)},
		{"Vessel", app.VesselName},
		{"Port of call", app.PortOfCall},
	}
	if app.ScheduledAt != nil {
		rows = append(rows, [2]string{"Scheduled", app.ScheduledAt.UTC().Format(time.RFC3339)})
	}
	if agent != nil {
		rows = append(rows, [2]string{"Agent", agent.Email})
	}
	if app.DecidedBy != "" {
		rows = append(rows, [2]string{"Decided by", app.DecidedBy})
	}
	rows = append(rows, [2]string{"Issued", issuedAt.UTC().Format(time.RFC3339)})

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", false, 0, "")
	}

	if len(app.Metadata) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Details", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		keys := make([]string, 0, len(app.Metadata))
		for k := range app.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pdf.MultiCell(0, 6, fmt.Sprintf("%s: %v", k, app.Metadata[k]), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", app.ID, err)
	}
	return buf.Bytes(), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
