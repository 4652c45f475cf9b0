package services

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/heartbeathq/heartbeat/internal/models"
)

// ErrAnalysisNotReady is returned when an export is requested before the
// pulse has been analyzed.
var ErrAnalysisNotReady = errors.New("pulse has no analysis to export")

var (
	blockTagRe = regexp.MustCompile(`(?i)</(h[1-6]|p|li|ul|ol|div|br)>|<br\s*/?>`)
	anyTagRe   = regexp.MustCompile(`<[^>]*>`)
	listItemRe = regexp.MustCompile(`(?i)<li[^>]*>`)
)

// ExportService renders analyzed pulses as downloadable PDF reports.
type ExportService struct {
	now func() time.Time
}

func NewExportService() *ExportService {
	return &ExportService{now: func() time.Time { return time.Now().UTC() }}
}

// BuildAnalysisPDF renders the pulse's stored analysis as a PDF document.
func (s *ExportService) BuildAnalysisPDF(p *models.Pulse) ([]byte, error) {
	if !p.HasAnalysis || p.AnalysisContent == "" {
		return nil, ErrAnalysisNotReady
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Pulse Analysis Summary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	if p.Name != "" {
		pdf.CellFormat(0, 6, "Pulse: "+p.Name, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Created: "+p.CreatedAt.Format("January 2, 2006"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Responses: %d of %d recipients", p.ResponseCount, len(p.RecipientEmails)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(p.RecipientEmails) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, "Recipients", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, strings.Join(p.RecipientEmails, ", "), "", "L", false)
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Analysis", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, stripHTML(p.AnalysisContent), "", "L", false)

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	footer := fmt.Sprintf("Generated on %s  •  Heartbeat - Anonymous Pulse Surveys", s.now().Format("January 2, 2006"))
	pdf.CellFormat(0, 5, footer, "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// stripHTML flattens the analysis HTML into plain text for the PDF body:
// block boundaries become newlines, list items become bullets, everything
// else is stripped.
func stripHTML(s string) string {
	s = listItemRe.ReplaceAllString(s, "\n  - ")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
