package audit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// BuildTrailPDF renders the audit trail as a PDF for compliance filings.
func BuildTrailPDF(projectID string, entries []Entry, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Field Data Audit Trail")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Project: %s", projectID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(entries)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(38, 6, "Time (UTC)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(38, 6, "Actor", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Action", "1", 0, "C", false, 0, "")
	pdf.CellFormat(58, 6, "Entry", "1", 0, "C", false, 0, "")
	pdf.CellFormat(100, 6, "Digest", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, entry := range entries {
		pdf.CellFormat(38, 6, entry.CreatedAt.UTC().Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(38, 6, entry.Actor, "1", 0, "L", false, 0, "")
		pdf.CellFormat(36, 6, entry.Action, "1", 0, "L", false, 0, "")
		pdf.CellFormat(58, 6, entry.EntryKey, "1", 0, "L", false, 0, "")
		pdf.CellFormat(100, 6, entry.PayloadDigest, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
