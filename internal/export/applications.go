package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the application rows.
const SheetName = "Applications"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ApplicationRow is one exported application, already joined with its job
// and applicant.
type ApplicationRow struct {
	ApplicationID  uint
	AppliedAt      time.Time
	JobTitle       string
	Department     string
	ApplicantName  string
	ApplicantEmail string
	ApplicantPhone string
	Status         string
	IsComplete     bool
	DocumentCount  int
	CoverLetter    string
}

var headers = []string{
	"Application ID",
	"Applied At",
	"Job Title",
	"Department",
	"Applicant",
	"Email",
	"Phone",
	"Status",
	"Complete",
	"Documents",
	"Cover Letter",
}

// Workbook renders rows into an XLSX workbook.
func Workbook(rows []ApplicationRow) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(SheetName); index == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)
	// excelize 默认带一个 Sheet1，导出时去掉。
	_ = f.DeleteSheet("Sheet1")

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(SheetName, "A1", lastHeader, bold)

	row := 2
	for _, r := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, r.ApplicationID)
		write(2, r.AppliedAt.UTC().Format("2006-01-02 15:04"))
		write(3, r.JobTitle)
		write(4, r.Department)
		write(5, r.ApplicantName)
		write(6, r.ApplicantEmail)
		write(7, r.ApplicantPhone)
		write(8, r.Status)
		write(9, yesNo(r.IsComplete))
		write(10, r.DocumentCount)
		write(11, truncate(r.CoverLetter, 300))
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 14)
	_ = f.SetColWidth(SheetName, "B", "B", 18)
	_ = f.SetColWidth(SheetName, "C", "D", 28)
	_ = f.SetColWidth(SheetName, "E", "F", 26)
	_ = f.SetColWidth(SheetName, "G", "J", 14)
	_ = f.SetColWidth(SheetName, "K", "K", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf, nil
}

// Filename returns the download name for a workbook generated at t.
func Filename(t time.Time) string {
	return "applications-" + t.UTC().Format("20060102") + ".xlsx"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
