package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	violationsSheet = "Violations"
	summarySheet    = "Summary"
)

// Exporter generates compliance report workbooks from recorded violations.
// One sheet lists every violation in the period; a second sheet aggregates
// counts per regulation for audit submission.
type Exporter struct {
	violations port.ViolationStore
	outputDir  string
	logger     *zap.Logger
}

// NewExporter creates a compliance report exporter writing into outputDir.
func NewExporter(violations port.ViolationStore, outputDir string, logger *zap.Logger) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &Exporter{
		violations: violations,
		outputDir:  outputDir,
		logger:     logger,
	}, nil
}

// Export writes the compliance report for [from, to) and returns the file
// path. Mandatory-report findings are marked so reviewers can file the
// regulator notifications first.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (string, error) {
	if !to.After(from) {
		return "", fmt.Errorf("report period end must be after start")
	}

	violations, err := e.violations.ListByPeriod(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("failed to load violations for report: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := e.fillViolationsSheet(file, violations); err != nil {
		return "", err
	}
	if err := e.fillSummarySheet(file, violations, from, to); err != nil {
		return "", err
	}

	// Drop the default sheet left over from NewFile.
	file.DeleteSheet("Sheet1")

	outputPath := filepath.Join(e.outputDir,
		fmt.Sprintf("compliance_report_%s_%s.xlsx",
			from.Format("20060102"), to.Format("20060102")))

	if err := file.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	e.logger.Info("Compliance report generated",
		zap.String("output_path", outputPath),
		zap.Int("violation_count", len(violations)))

	return outputPath, nil
}

var violationHeaders = []string{
	"ID", "Employee", "Type", "Severity", "Status",
	"Risk Score", "Regulations", "Mandatory Report", "Detected At",
}

func (e *Exporter) fillViolationsSheet(file *excelize.File, violations []*models.Violation) error {
	if _, err := file.NewSheet(violationsSheet); err != nil {
		return fmt.Errorf("failed to create violations sheet: %w", err)
	}

	for col, header := range violationHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := file.SetCellValue(violationsSheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header %q: %w", header, err)
		}
	}

	for i, v := range violations {
		meta, err := v.ParseMetadata()
		if err != nil {
			e.logger.Warn("Skipping violation with unreadable metadata in report",
				zap.Int64("violation_id", v.ID), zap.Error(err))
			meta = &models.ViolationMetadata{}
		}

		row := []interface{}{
			v.ID,
			v.EmployeeID,
			v.Type,
			v.Severity,
			v.Status,
			meta.RiskScore,
			regulationList(meta),
			meta.MandatoryReport,
			v.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to resolve cell at row %d: %w", i+2, err)
			}
			if err := file.SetCellValue(violationsSheet, cell, value); err != nil {
				return fmt.Errorf("failed to set cell at row %d: %w", i+2, err)
			}
		}
	}

	return nil
}

func (e *Exporter) fillSummarySheet(file *excelize.File, violations []*models.Violation, from, to time.Time) error {
	if _, err := file.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	bySeverity := map[string]int{}
	byRegulation := map[string]int{}
	mandatory := 0
	for _, v := range violations {
		bySeverity[v.Severity]++
		meta, err := v.ParseMetadata()
		if err != nil {
			continue
		}
		for reg := range meta.ComplianceFindings {
			byRegulation[reg]++
		}
		if meta.MandatoryReport {
			mandatory++
		}
	}

	rows := [][]interface{}{
		{"Report period", fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))},
		{"Total violations", len(violations)},
		{"Mandatory reports", mandatory},
		{},
		{"Severity", "Count"},
	}
	for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n, ok := bySeverity[sev]; ok {
			rows = append(rows, []interface{}{sev, n})
		}
	}
	rows = append(rows, []interface{}{}, []interface{}{"Regulation", "Count"})
	for _, reg := range sortedKeys(byRegulation) {
		rows = append(rows, []interface{}{reg, byRegulation[reg]})
	}

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("failed to resolve summary cell: %w", err)
			}
			if err := file.SetCellValue(summarySheet, cell, value); err != nil {
				return fmt.Errorf("failed to set summary cell: %w", err)
			}
		}
	}

	return nil
}

func regulationList(meta *models.ViolationMetadata) string {
	regs := sortedKeys(meta.ComplianceFindings)
	out := ""
	for i, reg := range regs {
		if i > 0 {
			out += ", "
		}
		out += reg
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
