// Package extract turns raw file bytes into normalized metadata. One
// extractor per file type; each runs three layered passes (filename
// grammars, format-specific content, shared text heuristics) with later
// passes only filling fields still empty.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/naming"
)

// Hints are caller-supplied codes passed into an extraction.
type Hints struct {
	ClientCode  string
	ProjectCode string
}

var (
	reClientShape  = regexp.MustCompile(`(?i)^CL-?\d{4}$`)
	reProjectShape = regexp.MustCompile(`(?i)^[A-Z]{2,4}-\d{4}-\d{2}-CL\d{4}-\d{3}$`)
)

// Validate rejects hints whose shape does not match the known code
// grammars before any extractor runs.
func (h Hints) Validate() error {
	if h.ClientCode != "" && !reClientShape.MatchString(h.ClientCode) {
		return common.NewValidationError("client code hint does not match CL-#### shape")
	}
	if h.ProjectCode != "" && !reProjectShape.MatchString(h.ProjectCode) {
		return common.NewValidationError("project code hint does not match project code shape")
	}
	return nil
}

// canonical returns the hints in canonical layout.
func (h Hints) canonical() (client, project string) {
	if h.ClientCode != "" {
		client = "CL" + strings.TrimPrefix(strings.ToUpper(h.ClientCode), "CL")
		client = strings.ReplaceAll(client, "-", "")
	}
	if h.ProjectCode != "" {
		project = strings.ToUpper(h.ProjectCode)
	}
	return client, project
}

// Metadata is the normalized result of one extraction attempt. Raw
// holds the format-specific payload for persistence and never crosses
// the JSON boundary; API consumers read it from the extraction record.
type Metadata struct {
	SourceFilename string             `json:"source_filename"`
	FileType       constants.FileType `json:"file_type"`
	ClientCode     string             `json:"client_code,omitempty"`
	ProjectCode    string             `json:"project_code,omitempty"`
	PartName       string             `json:"part_name,omitempty"`
	Material       string             `json:"material,omitempty"`
	ThicknessMM    float64            `json:"thickness_mm,omitempty"` // 0 means unknown
	Quantity       int                `json:"quantity"`               // >= 1
	Version        int                `json:"version"`                // >= 1
	Confidence     float64            `json:"confidence_score"`       // clamped to [0, 1]
	FileSize       int64              `json:"file_size,omitempty"`
	MIMEHint       string             `json:"mime_hint,omitempty"`
	Raw            RawExtraction      `json:"-"`
}

// NewMetadata returns metadata with the defaulted invariants applied:
// quantity and version start at 1 and are never <= 0.
func NewMetadata(sourceFilename string, ft constants.FileType) *Metadata {
	return &Metadata{
		SourceFilename: sourceFilename,
		FileType:       ft,
		Quantity:       1,
		Version:        1,
	}
}

// NamingFields projects the metadata onto the filename grammar fields.
func (m *Metadata) NamingFields() naming.Fields {
	ext := ""
	if i := strings.LastIndex(m.SourceFilename, "."); i >= 0 {
		ext = strings.ToLower(m.SourceFilename[i+1:])
	}
	return naming.Fields{
		ClientCode:  m.ClientCode,
		ProjectCode: m.ProjectCode,
		PartName:    m.PartName,
		Material:    m.Material,
		ThicknessMM: m.ThicknessMM,
		Quantity:    m.Quantity,
		Version:     m.Version,
		Ext:         ext,
	}
}

// applyFilename runs pass 1: both filename grammars against the original
// name, filling whatever fields they encode.
func (m *Metadata) applyFilename() {
	f, ok := naming.Parse(m.SourceFilename)
	if !ok {
		return
	}
	m.ClientCode = f.ClientCode
	m.ProjectCode = f.ProjectCode
	m.PartName = f.PartName
	m.Material = f.Material
	m.ThicknessMM = f.ThicknessMM
	if f.Quantity > 1 {
		m.Quantity = f.Quantity
	}
	if f.Version > 1 {
		m.Version = f.Version
	}
}

// applyHints lets caller-supplied codes fill still-empty fields.
func (m *Metadata) applyHints(h Hints) {
	client, project := h.canonical()
	if m.ClientCode == "" {
		m.ClientCode = client
	}
	if m.ProjectCode == "" {
		m.ProjectCode = project
	}
}

// RawExtraction is the format-specific payload attached to metadata; one
// variant per file type.
type RawExtraction interface {
	Kind() string
}

// BoundingBox is an axis-aligned extent in drawing units.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Valid reports whether the box spans a positive area.
func (b BoundingBox) Valid() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

// DXFRaw is the payload extracted from a vector-CAD drawing.
type DXFRaw struct {
	Layers       []string       `json:"layers"`
	EntityCounts map[string]int `json:"entity_counts"`
	Bounds       BoundingBox    `json:"bounds"`
	BoundsValid  bool           `json:"bounds_valid"`
	PerimeterMM  float64        `json:"perimeter_mm"`
	HoleCount    int            `json:"hole_count"`
	Labels       []string       `json:"labels"`
}

func (DXFRaw) Kind() string { return "dxf" }

// CutSetting is one named cut/engrave setting from a cut-job file.
type CutSetting struct {
	Name   string  `json:"name"`
	Power  float64 `json:"power"`
	Speed  float64 `json:"speed"`
	Passes int     `json:"passes"`
}

// CutJobRaw is the payload extracted from a laser cut-job file.
type CutJobRaw struct {
	Device         string         `json:"device"`
	MaterialHeight float64        `json:"material_height"`
	CutSettings    []CutSetting   `json:"cut_settings"`
	ShapeCounts    map[string]int `json:"shape_counts"`
	Texts          []string       `json:"texts"`
	Bounds         BoundingBox    `json:"bounds"`
	BoundsValid    bool           `json:"bounds_valid"`
}

func (CutJobRaw) Kind() string { return "cutjob" }

// PDFRaw is the payload extracted from a portable document.
type PDFRaw struct {
	PageTexts  []string   `json:"page_texts"`
	PageCount  int        `json:"page_count"`
	ImageCount int        `json:"image_count"`
	Tables     [][]string `json:"tables,omitempty"`
}

func (PDFRaw) Kind() string { return "pdf" }

// SpreadsheetRaw is the payload extracted from a workbook or CSV.
type SpreadsheetRaw struct {
	SheetName     string            `json:"sheet_name"`
	Headers       []string          `json:"headers"`
	ColumnMapping map[string]string `json:"column_mapping"` // semantic field -> header
	Schema        string            `json:"schema"`
	RowCount      int               `json:"row_count"`
}

func (SpreadsheetRaw) Kind() string { return "spreadsheet" }

// ImageRaw is the payload extracted from a raster image.
type ImageRaw struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ColorMode    string `json:"color_mode"`
	OCRAvailable bool   `json:"ocr_available"`
	OCRText      string `json:"ocr_text,omitempty"`
}

func (ImageRaw) Kind() string { return "image" }

// Extractor is the common contract for every format.
type Extractor interface {
	// Parse consumes raw file bytes plus optional hints and produces
	// normalized metadata with a format-specific raw payload and a
	// confidence score. Errors are returned for unreadable or corrupt
	// structure, zero-byte input, and malformed hints.
	Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error)
	// Name identifies the parser and its version for extraction records.
	Name() string
}

// checkInput applies the checks shared by all extractors.
func checkInput(data []byte, hints Hints) error {
	if len(data) == 0 {
		return common.NewParseError("zero-byte input", nil)
	}
	return hints.Validate()
}
