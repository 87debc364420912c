package upload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pipeline-crm/internal/features/deal"
	"pipeline-crm/pkg/utils"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrInvalidFile = errors.New("invalid upload file")

// csvToLocalColumns maps normalized upload headers to local deal fields.
// The headers follow the export format of the tasks tool the data comes from.
var csvToLocalColumns = map[string]string{
	"task name":    deal.FieldClient,
	"status":       deal.FieldStatus,
	"montant deal": deal.FieldAmount,
	"tags":         deal.FieldSector,
	"due date":     deal.FieldDueDate,
	"assignees":    deal.FieldAssignee,
	"task content": deal.FieldNotes,
}

var requiredColumns = []string{"task name", "status", "montant deal"}

// maxReportedErrors caps the per-row diagnostics returned to the caller.
const maxReportedErrors = 10

type UploadResult struct {
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	TotalRows  int      `json:"totalRows"`
	Errors     []string `json:"errors"`
	MoreErrors int      `json:"moreErrors,omitempty"`
}

type UploadService interface {
	// ImportFile replaces the whole deal store with the rows of the
	// uploaded CSV or XLSX file.
	ImportFile(ctx context.Context, filename string, file io.Reader) (*UploadResult, error)
}

type UploadServiceImpl struct {
	DealRepo deal.DealRepository
	Logger   *zap.Logger
}

func NewUploadService(dealRepo deal.DealRepository, logger *zap.Logger) UploadService {
	return &UploadServiceImpl{
		DealRepo: dealRepo,
		Logger:   logger,
	}
}

func (s *UploadServiceImpl) ImportFile(ctx context.Context, filename string, file io.Reader) (*UploadResult, error) {
	var rows [][]string
	var err error

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
		rows, err = readExcel(file)
	case strings.HasSuffix(lower, ".csv"):
		rows, err = readCSV(file)
	default:
		return nil, fmt.Errorf("%w: unsupported extension, expected .csv or .xlsx", ErrInvalidFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}

	header := normalizeHeader(rows[0])
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidFile, strings.Join(missing, ", "))
	}

	var deals []deal.Deal
	var rowErrors []string

	for i, row := range rows[1:] {
		rowNumber := i + 2 // header is row 1

		if isBlankRow(row) {
			continue
		}

		d, errs := buildDeal(header, row, rowNumber)
		if len(errs) > 0 {
			rowErrors = append(rowErrors, errs...)
			continue
		}
		deals = append(deals, *d)
	}

	if len(deals) == 0 {
		return nil, fmt.Errorf("%w: no valid rows (%d errors)", ErrInvalidFile, len(rowErrors))
	}

	// Full replacement: the upload is the new source of truth
	if err := s.DealRepo.Clear(ctx); err != nil {
		return nil, err
	}
	inserted, err := s.DealRepo.InsertMany(ctx, deals)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		Imported:  inserted,
		Skipped:   len(rowErrors),
		TotalRows: len(rows) - 1,
		Errors:    rowErrors,
	}
	if len(result.Errors) > maxReportedErrors {
		result.MoreErrors = len(result.Errors) - maxReportedErrors
		result.Errors = result.Errors[:maxReportedErrors]
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}

	s.Logger.Info("file import finished",
		zap.String("filename", filename),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))

	return result, nil
}

func readCSV(file io.Reader) ([][]string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func readExcel(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// normalizeHeader lowercases and trims header cells and maps them to local
// deal fields. Unknown columns map to "" and are ignored.
func normalizeHeader(raw []string) []string {
	header := make([]string, len(raw))
	for i, cell := range raw {
		header[i] = csvToLocalColumns[strings.ToLower(strings.TrimSpace(cell))]
	}
	return header
}

func missingColumns(header []string) []string {
	present := map[string]bool{}
	for _, field := range header {
		if field != "" {
			present[field] = true
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if !present[csvToLocalColumns[col]] {
			missing = append(missing, col)
		}
	}
	return missing
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// buildDeal validates one data row and turns it into a deal. Diagnostics
// carry the 1-based row number of the source file.
func buildDeal(header []string, row []string, rowNumber int) (*deal.Deal, []string) {
	values := map[string]string{}
	for i, field := range header {
		if field == "" || i >= len(row) {
			continue
		}
		values[field] = strings.TrimSpace(row[i])
	}

	var errs []string

	client := values[deal.FieldClient]
	if client == "" {
		errs = append(errs, fmt.Sprintf("row %d: client name cannot be empty", rowNumber))
	}

	status, ok := deal.NormalizeStatus(values[deal.FieldStatus])
	if !ok {
		errs = append(errs, fmt.Sprintf("row %d: invalid status %q, accepted values: %s",
			rowNumber, values[deal.FieldStatus], strings.Join(deal.ValidStatuses(), ", ")))
	}

	amount, err := parseAmount(values[deal.FieldAmount])
	if err != nil {
		errs = append(errs, fmt.Sprintf("row %d: %v", rowNumber, err))
	}

	dueDate := values[deal.FieldDueDate]
	if dueDate != "" {
		parsed, err := utils.ParseDate(dueDate)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: invalid due date %q, accepted formats: YYYY-MM-DD, DD/MM/YYYY", rowNumber, dueDate))
		} else {
			dueDate = parsed
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	probability := deal.Probability(status)
	return &deal.Deal{
		Client:        client,
		Status:        status,
		Amount:        amount,
		Probability:   probability,
		WeightedValue: deal.WeightedValue(amount, probability),
		Sector:        values[deal.FieldSector],
		DueDate:       dueDate,
		Assignee:      values[deal.FieldAssignee],
		Notes:         values[deal.FieldNotes],
	}, nil
}

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("amount cannot be empty")
	}

	// Tolerate French number formatting in spreadsheet exports
	cleaned := strings.NewReplacer(" ", "", " ", "", "€", "", ",", ".").Replace(raw)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a valid number", raw)
	}
	if amount <= 0 {
		return 0, errors.New("amount must be greater than 0")
	}
	return amount, nil
}
