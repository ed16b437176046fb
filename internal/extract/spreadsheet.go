package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/normalize"
)

// SpreadsheetExtractor reads workbooks and CSV files, maps headers onto
// semantic fields, and classifies the sheet schema.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor { return &SpreadsheetExtractor{} }

func (e *SpreadsheetExtractor) Name() string { return "spreadsheet-parser/1" }

// headerSynonyms maps a semantic field to the header spellings that
// identify it. Matching is case-insensitive on the normalized header.
var headerSynonyms = map[string][]string{
	"part":      {"part", "part name", "part no", "component", "item", "description"},
	"material":  {"material", "mat", "material type", "grade"},
	"thickness": {"thickness", "thk", "thickness mm", "gauge"},
	"quantity":  {"quantity", "qty", "pcs", "count", "no off", "no. off"},
	"client":    {"client", "customer", "client code", "account"},
	"project":   {"project", "project code", "job", "job no", "job number"},
	"price":     {"price", "unit price", "cost", "rate", "amount", "total"},
	"stock":     {"stock", "on hand", "in stock", "location", "bin"},
}

func (e *SpreadsheetExtractor) Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error) {
	if err := checkInput(data, hints); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rows  [][]string
		sheet string
		err   error
	)
	if strings.HasSuffix(strings.ToLower(originalFilename), ".csv") {
		rows, err = readCSVRows(data)
		sheet = "csv"
	} else {
		rows, sheet, err = readWorkbookRows(data)
	}
	if err != nil {
		return nil, err
	}

	raw := buildSpreadsheetRaw(rows, sheet)

	md := NewMetadata(originalFilename, constants.SPREADSHEET)
	md.FileSize = int64(len(data))
	md.Raw = raw

	md.applyFilename()
	applyColumns(md, raw, rows)
	md.applyHints(hints)
	md.backfillFromText(flattenRows(rows)...)

	var bonus float64
	if raw.Schema != "generic" {
		bonus += 0.15
	}
	scoreConfidence(md, bonus)
	return md, nil
}

func readCSVRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, common.NewParseError("invalid CSV content", err)
	}
	if len(rows) == 0 {
		return nil, common.NewParseError("spreadsheet has no rows", nil)
	}
	return rows, nil
}

func readWorkbookRows(data []byte) ([][]string, string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", common.NewParseError("invalid workbook structure", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", common.NewParseError("workbook has no sheets", nil)
	}
	sheet := sheets[0]
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, "", common.NewParseError("unreadable sheet content", err)
	}
	if len(rows) == 0 {
		return nil, "", common.NewParseError("spreadsheet has no rows", nil)
	}
	return rows, sheet, nil
}

func buildSpreadsheetRaw(rows [][]string, sheet string) *SpreadsheetRaw {
	raw := &SpreadsheetRaw{
		SheetName:     sheet,
		ColumnMapping: make(map[string]string),
	}
	headerIdx := findHeaderRow(rows)
	if headerIdx >= 0 {
		raw.Headers = rows[headerIdx]
		raw.RowCount = len(rows) - headerIdx - 1
		for field, header := range mapHeaders(rows[headerIdx]) {
			raw.ColumnMapping[field] = header
		}
	} else {
		raw.RowCount = len(rows)
	}
	raw.Schema = classifySchema(raw.ColumnMapping)
	return raw
}

// findHeaderRow returns the index of the first row that maps at least two
// semantic fields, or -1 when no row qualifies. Scanning is capped so a
// sheet of pure data does not pay for a full pass.
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		if len(mapHeaders(rows[i])) >= 2 {
			return i
		}
	}
	return -1
}

func mapHeaders(row []string) map[string]string {
	mapping := make(map[string]string)
	for _, cell := range row {
		norm := normalizeHeader(cell)
		if norm == "" {
			continue
		}
	synonyms:
		for field, names := range headerSynonyms {
			if _, taken := mapping[field]; taken {
				continue
			}
			for _, name := range names {
				if norm == name {
					mapping[field] = cell
					break synonyms
				}
			}
		}
	}
	return mapping
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// classifySchema names the sheet layout from the fields its headers map.
func classifySchema(mapping map[string]string) string {
	has := func(fields ...string) bool {
		for _, f := range fields {
			if _, ok := mapping[f]; !ok {
				return false
			}
		}
		return true
	}
	switch {
	case has("part", "material", "thickness", "quantity"):
		return "cutting_list"
	case has("part", "quantity", "price"):
		return "quote"
	case has("part", "price") && has("client"):
		return "invoice"
	case has("part", "quantity"):
		return "parts_list"
	case has("part", "stock"):
		return "inventory"
	default:
		return "generic"
	}
}

// applyColumns fills still-empty metadata fields from the first data row
// under a recognized header.
func applyColumns(md *Metadata, raw *SpreadsheetRaw, rows [][]string) {
	if len(raw.ColumnMapping) == 0 || len(raw.Headers) == 0 {
		return
	}
	headerIdx := -1
	for i, row := range rows {
		if len(row) == len(raw.Headers) && sameRow(row, raw.Headers) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 || headerIdx+1 >= len(rows) {
		return
	}
	first := rows[headerIdx+1]
	cell := func(field string) string {
		header, ok := raw.ColumnMapping[field]
		if !ok {
			return ""
		}
		for i, h := range raw.Headers {
			if h == header && i < len(first) {
				return strings.TrimSpace(first[i])
			}
		}
		return ""
	}

	if md.PartName == "" {
		md.PartName = cell("part")
	}
	if md.Material == "" {
		if mat, ok := normalize.DetectMaterial(cell("material")); ok {
			md.Material = mat
		}
	}
	if md.ThicknessMM == 0 {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(cell("thickness")), "mm"), 64); err == nil && v > 0 {
			md.ThicknessMM = v
		}
	}
	if md.Quantity <= 1 {
		if n, err := strconv.Atoi(cell("quantity")); err == nil && n >= 1 && n <= 10000 {
			md.Quantity = n
		}
	}
	if md.ClientCode == "" {
		if c, ok := normalize.DetectClientCode(cell("client")); ok {
			md.ClientCode = c
		}
	}
	if md.ProjectCode == "" {
		if p, ok := normalize.DetectProjectCode(cell("project")); ok {
			md.ProjectCode = p
		}
	}
}

func sameRow(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flattenRows(rows [][]string) []string {
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		texts = append(texts, strings.Join(row, " "))
	}
	return texts
}
