package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/session"
)

// ExportPDF renders the prescription as a PDF document.
func (d *Dispatcher) ExportPDF(ctx context.Context, sess session.Session, prescriptionID string) ([]byte, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prescriptionID) == "" {
		return nil, ErrMissingPrescription
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.export_pdf")
	defer span.End()

	detail := d.backend.PrescriptionDetail(ctx, sess, prescriptionID)
	doc, err := renderPDF(detail, time.Now())
	if err != nil {
		span.RecordError(err)
		d.logger.Error("pdf export failed", zap.String("prescription_id", prescriptionID), zap.Error(err))
		return nil, err
	}
	d.metrics.Shared("pdf", true)
	return doc, nil
}

func renderPDF(rx backend.PrescriptionDetail, generated time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := layoutPDF(rx, generated).Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// layoutPDF builds the document. Core fonts are cp1252, so every value passes
// through tr before it is drawn.
func layoutPDF(rx backend.PrescriptionDetail, generated time.Time) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Prescription "+rx.ID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Prescription", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, tr("Reference: "+rx.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	addDetail(pdf, "Patient", tr(rx.PatientName))
	addDetail(pdf, "Diagnosis", tr(rx.Diagnosis))
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	widths := []float64{60, 40, 40, 40}
	for i, h := range []string{"Medication", "Dosage", "Duration", "Form"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, m := range rx.Medications {
		name := m.Name
		if m.DrugCode != "" {
			name = fmt.Sprintf("%s (%s)", m.Name, m.DrugCode)
		}
		for i, v := range []string{name, m.Dosage, m.Duration, m.DosageForm} {
			pdf.CellFormat(widths[i], 8, tr(v), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetY(pdf.GetY() + 12)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, "Generated "+generated.Format("2006-01-02 15:04 MST"), "", 1, "R", false, 0, "")
	return pdf
}

func addDetail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(35, 8, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, value, "1", 1, "", false, 0, "")
}
