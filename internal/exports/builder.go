package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// Report describes the telemetry window being exported.
type Report struct {
	DeviceID    string
	From        time.Time
	To          time.Time
	GeneratedAt time.Time
	Readings    []telemetry.Reading
}

// BuildCSV renders the report as CSV.
func BuildCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"recorded_at", "sensor_type", "value", "unit"}); err != nil {
		return nil, err
	}
	for _, reading := range report.Readings {
		record := []string{
			reading.RecordedAt.Format(time.RFC3339),
			reading.SensorType,
			strconv.FormatFloat(reading.Value, 'f', -1, 64),
			reading.Unit,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders the report as a workbook with a summary and a readings
// sheet.
func BuildXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	readingsSheet := "readings"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(readingsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Telemetry Report")
	_ = f.SetCellValue(summarySheet, "A3", "Device")
	_ = f.SetCellValue(summarySheet, "B3", report.DeviceID)
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", report.From.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", report.To.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Readings")
	_ = f.SetCellValue(summarySheet, "B6", len(report.Readings))
	_ = f.SetCellValue(summarySheet, "A7", "Generated")
	_ = f.SetCellValue(summarySheet, "B7", report.GeneratedAt.Format(time.RFC3339))

	_ = f.SetCellValue(readingsSheet, "A1", "Recorded At")
	_ = f.SetCellValue(readingsSheet, "B1", "Sensor")
	_ = f.SetCellValue(readingsSheet, "C1", "Value")
	_ = f.SetCellValue(readingsSheet, "D1", "Unit")
	for i, reading := range report.Readings {
		row := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", row), reading.RecordedAt.Format(time.RFC3339))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("B%d", row), reading.SensorType)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("C%d", row), reading.Value)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("D%d", row), reading.Unit)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders the report as a minimal PDF.
func BuildPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Telemetry Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", report.DeviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", report.From.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", report.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(55, 6, "Recorded At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Sensor", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, reading := range report.Readings {
		pdf.CellFormat(55, 6, reading.RecordedAt.Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, reading.SensorType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.3f", reading.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, reading.Unit, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
