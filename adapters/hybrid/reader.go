package hybrid

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/internal"

	"github.com/xuri/excelize/v2"
)

// Column aliases, matched after header normalization
var (
	geneColumns   = []string{"gene_id", "hgnc_id", "gene"}
	symbolColumns = []string{"gene_symbol", "symbol", "approved_symbol"}
	detailColumns = []string{"detail", "provider", "publication"}
)

// listSeparators split a cell into a JSON array
const listSeparators = ";|"

// Reader parses administrator uploads (.xlsx or .csv) into evidence records.
// The first sheet of a workbook is used. Columns other than gene, symbol and
// detail become payload fields.
type Reader struct {
	logger *internal.Logger
}

// NewReader creates an upload reader
func NewReader(logger *internal.Logger) *Reader {
	if logger == nil {
		logger = internal.DefaultLogger.With("hybrid")
	}
	return &Reader{logger: logger}
}

// Parse reads every data row of the upload as one record of src
func (r *Reader) Parse(filename string, in io.Reader, src core.SourceName) ([]*evidence.Record, error) {
	start := time.Now()
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		rows [][]string
		err  error
	)
	switch ext {
	case ".csv":
		rows, err = readCSV(in)
	case ".xlsx":
		rows, err = readWorkbook(in)
	default:
		return nil, core.NewValidationError("file", fmt.Sprintf("unsupported upload type %q (want .xlsx or .csv)", ext))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, core.NewValidationError("file", "upload must have a header row and at least one data row")
	}

	records, skipped, err := processRows(rows, src)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		r.logger.Warn("%s: skipped %d rows without a gene id", filename, skipped)
	}
	r.logger.Info("%s parsed in %.2fms (%d records for %s)",
		filename, float64(time.Since(start).Nanoseconds())/1e6, len(records), src)
	return records, nil
}

func readCSV(in io.Reader) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewValidationError("file", fmt.Sprintf("failed to read CSV: %v", err))
	}
	return rows, nil
}

func readWorkbook(in io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, core.NewValidationError("file", fmt.Sprintf("failed to open workbook: %v", err))
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, core.NewValidationError("file", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// processRows maps the header, then builds one record per row with a gene id
func processRows(rows [][]string, src core.SourceName) ([]*evidence.Record, int, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}
	geneCol := findColumn(headers, geneColumns)
	if geneCol < 0 {
		return nil, 0, core.NewValidationError("file", fmt.Sprintf("no gene column (one of %s)", strings.Join(geneColumns, ", ")))
	}
	symbolCol := findColumn(headers, symbolColumns)
	detailCol := findColumn(headers, detailColumns)

	var (
		records []*evidence.Record
		skipped int
	)
	for _, row := range rows[1:] {
		gene, err := core.ParseGeneID(cell(row, geneCol))
		if err != nil {
			skipped++
			continue
		}
		payload := make(map[string]interface{})
		for j, header := range headers {
			if j == geneCol || j == symbolCol || j == detailCol || header == "" {
				continue
			}
			if v, ok := parseValue(cell(row, j)); ok {
				payload[header] = v
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal payload for gene %s: %w", gene, err)
		}
		records = append(records, &evidence.Record{
			GeneID:     gene,
			GeneSymbol: cell(row, symbolCol),
			SourceName: src,
			Detail:     cell(row, detailCol),
			Payload:    data,
		})
	}
	if len(records) == 0 {
		return nil, skipped, core.NewValidationError("file", "no row carries a gene id")
	}
	return records, skipped, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

func findColumn(headers []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range headers {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseValue types a cell: lists on ; or |, then numbers, then booleans
func parseValue(raw string) (interface{}, bool) {
	if raw == "" {
		return nil, false
	}
	if strings.ContainsAny(raw, listSeparators) {
		parts := strings.FieldsFunc(raw, func(r rune) bool {
			return strings.ContainsRune(listSeparators, r)
		})
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		return items, true
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, true
	}
	switch strings.ToLower(raw) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return raw, true
}

// WriteTemplate renders an empty upload workbook with the expected header
func WriteTemplate(w io.Writer, extraColumns ...string) error {
	f := excelize.NewFile()
	defer f.Close()

	header := append([]string{"gene_id", "gene_symbol", "detail"}, extraColumns...)
	for i, h := range header {
		ref, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue("Sheet1", ref, h); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}
