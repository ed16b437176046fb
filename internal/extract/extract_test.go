package extract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/naming"
)

func dxfStream(pairs ...string) []byte {
	return []byte(strings.Join(pairs, "\n") + "\n")
}

func TestDXFExtractorParsesEntities(t *testing.T) {
	data := dxfStream(
		"0", "SECTION",
		"2", "ENTITIES",
		"0", "LINE",
		"8", "Cut",
		"10", "0", "20", "0",
		"11", "100", "21", "0",
		"0", "CIRCLE",
		"8", "Holes",
		"10", "50", "20", "50",
		"40", "5",
		"0", "TEXT",
		"8", "Labels",
		"1", "BracketLeft MS t=5mm x14",
		"0", "ENDSEC",
		"0", "EOF",
	)

	md, err := NewDXFExtractor().Parse(context.Background(), data, "drawing.dxf", Hints{})
	require.NoError(t, err)

	raw, ok := md.Raw.(*DXFRaw)
	require.True(t, ok)
	assert.Equal(t, []string{"Cut", "Holes", "Labels"}, raw.Layers)
	assert.Equal(t, 1, raw.EntityCounts["LINE"])
	assert.Equal(t, 1, raw.EntityCounts["CIRCLE"])
	assert.Equal(t, 1, raw.HoleCount)
	assert.True(t, raw.BoundsValid)

	assert.Equal(t, "Mild Steel", md.Material)
	assert.InDelta(t, 5.0, md.ThicknessMM, 1e-9)
	assert.Equal(t, 14, md.Quantity)
}

func TestDXFExtractorRejectsGarbage(t *testing.T) {
	_, err := NewDXFExtractor().Parse(context.Background(), []byte("this is not a drawing"), "x.dxf", Hints{})
	assert.Error(t, err)

	_, err = NewDXFExtractor().Parse(context.Background(), nil, "x.dxf", Hints{})
	assert.Error(t, err)
}

const sampleCutJob = `<?xml version="1.0" encoding="UTF-8"?>
<LightBurnProject DeviceName="FiberPro" MaterialHeight="3">
  <CutSetting type="Cut">
    <name Value="Cut stainless 3mm"/>
    <maxPower Value="80"/>
    <speed Value="12"/>
    <numPasses Value="1"/>
  </CutSetting>
  <Shape Type="Rect" W="120" H="60">
    <XForm>1 0 0 1 60 30</XForm>
  </Shape>
  <Shape Type="Text" Str="CL-0042 qty: 6">
    <XForm>1 0 0 1 10 10</XForm>
  </Shape>
</LightBurnProject>`

func TestCutJobExtractorFullScenario(t *testing.T) {
	md, err := NewCutJobExtractor().Parse(context.Background(), []byte(sampleCutJob), "FlangePlate.lbrn2", Hints{ProjectCode: "JB-2025-10-CL0042-003"})
	require.NoError(t, err)

	raw, ok := md.Raw.(*CutJobRaw)
	require.True(t, ok)
	assert.Equal(t, "FiberPro", raw.Device)
	require.Len(t, raw.CutSettings, 1)
	assert.Equal(t, 80.0, raw.CutSettings[0].Power)
	assert.Equal(t, 1, raw.ShapeCounts["Rect"])

	assert.Equal(t, "CL0042", md.ClientCode)
	assert.Equal(t, "JB-2025-10-CL0042-003", md.ProjectCode)
	assert.Equal(t, "Stainless Steel", md.Material)
	assert.InDelta(t, 3.0, md.ThicknessMM, 1e-9)
	assert.Equal(t, 6, md.Quantity)

	f := md.NamingFields()
	f.PartName = "FlangePlate"
	assert.Equal(t, "CL0042-JB-2025-10-CL0042-003-FlangePlate-SS-3mm-x6.lbrn2", naming.Generate(f))
}

func TestCutJobExtractorRejectsBrokenXML(t *testing.T) {
	_, err := NewCutJobExtractor().Parse(context.Background(), []byte("<LightBurnProject"), "a.lbrn2", Hints{})
	assert.Error(t, err)
}

func TestSpreadsheetExtractorCuttingList(t *testing.T) {
	csvData := []byte("Part,Material,Thickness,Qty\nBracketLeft,mild steel,5,14\nBracketRight,mild steel,5,14\n")

	md, err := NewSpreadsheetExtractor().Parse(context.Background(), csvData, "cutting_list.csv", Hints{ClientCode: "CL-0001"})
	require.NoError(t, err)

	raw, ok := md.Raw.(*SpreadsheetRaw)
	require.True(t, ok)
	assert.Equal(t, "cutting_list", raw.Schema)
	assert.Equal(t, 2, raw.RowCount)
	assert.Equal(t, "Part", raw.ColumnMapping["part"])

	assert.Equal(t, "BracketLeft", md.PartName)
	assert.Equal(t, "Mild Steel", md.Material)
	assert.InDelta(t, 5.0, md.ThicknessMM, 1e-9)
	assert.Equal(t, 14, md.Quantity)
	assert.Equal(t, "CL0001", md.ClientCode)
	assert.GreaterOrEqual(t, md.Confidence, CompleteThreshold)
}

func TestSpreadsheetExtractorCodeColumns(t *testing.T) {
	csvData := []byte("Part,Qty,Customer,Project\nGusset,4,CL-0042,JB-2025-10-CL0042-003\nRib,2,CL-0042,JB-2025-10-CL0042-003\n")

	md, err := NewSpreadsheetExtractor().Parse(context.Background(), csvData, "parts.csv", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "CL0042", md.ClientCode)
	assert.Equal(t, "JB-2025-10-CL0042-003", md.ProjectCode)
	assert.Equal(t, "Gusset", md.PartName)
	assert.Equal(t, 4, md.Quantity)
}

func TestSpreadsheetExtractorUnrecognizedCellsLeaveFieldsEmpty(t *testing.T) {
	csvData := []byte("Part,Material,Customer\nWidget,unobtanium,walk-in\n")

	md, err := NewSpreadsheetExtractor().Parse(context.Background(), csvData, "parts.csv", Hints{})
	require.NoError(t, err)
	assert.Empty(t, md.Material)
	assert.Empty(t, md.ClientCode)
}

func TestSpreadsheetExtractorGenericSheet(t *testing.T) {
	csvData := []byte("alpha,beta\n1,2\n")
	md, err := NewSpreadsheetExtractor().Parse(context.Background(), csvData, "misc.csv", Hints{})
	require.NoError(t, err)
	assert.Equal(t, "generic", md.Raw.(*SpreadsheetRaw).Schema)
	assert.Less(t, md.Confidence, CompleteThreshold)
}

func TestClassifySchema(t *testing.T) {
	cases := []struct {
		fields []string
		want   string
	}{
		{[]string{"part", "material", "thickness", "quantity"}, "cutting_list"},
		{[]string{"part", "quantity", "price"}, "quote"},
		{[]string{"part", "price", "client"}, "invoice"},
		{[]string{"part", "quantity"}, "parts_list"},
		{[]string{"part", "stock"}, "inventory"},
		{[]string{"price"}, "generic"},
	}
	for _, tc := range cases {
		mapping := make(map[string]string, len(tc.fields))
		for _, f := range tc.fields {
			mapping[f] = f
		}
		assert.Equal(t, tc.want, classifySchema(mapping), "fields %v", tc.fields)
	}
}

func TestDecodePDFLiteral(t *testing.T) {
	assert.Equal(t, "a(b)c", decodePDFLiteral([]byte(`a\(b\)c`)))
	assert.Equal(t, "A", decodePDFLiteral([]byte(`\101`)))
	assert.Equal(t, "line\nnext", decodePDFLiteral([]byte(`line\nnext`)))
}

func TestDetectTableRows(t *testing.T) {
	rows := detectTableRows("Part\tQty\nBracket\t14\nno cells here\n")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Part", "Qty"}, rows[0])
	assert.Equal(t, []string{"Bracket", "14"}, rows[1])
}

type stubRunner struct {
	out string
	err error
}

func (s stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return []byte(s.out), nil, s.err
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageExtractorWithStubbedOCR(t *testing.T) {
	engine := NewOCREngine(OCRConfig{Tesseract: "/bin/sh"}, nil)
	engine.SetRunner(stubRunner{out: "BracketLeft stainless steel t=4mm x3"})

	md, err := NewImageExtractor(engine).Parse(context.Background(), tinyPNG(t), "photo.png", Hints{})
	require.NoError(t, err)

	raw, ok := md.Raw.(*ImageRaw)
	require.True(t, ok)
	assert.True(t, raw.OCRAvailable)
	assert.Equal(t, 1, raw.Width)
	assert.Equal(t, "grayscale", raw.ColorMode)

	assert.Equal(t, "Stainless Steel", md.Material)
	assert.InDelta(t, 4.0, md.ThicknessMM, 1e-9)
	assert.Equal(t, 3, md.Quantity)
}

func TestImageExtractorWithoutOCR(t *testing.T) {
	md, err := NewImageExtractor(nil).Parse(context.Background(), tinyPNG(t), "photo.png", Hints{})
	require.NoError(t, err)
	assert.False(t, md.Raw.(*ImageRaw).OCRAvailable)
}

func TestImageExtractorRejectsGarbage(t *testing.T) {
	_, err := NewImageExtractor(nil).Parse(context.Background(), []byte("not an image"), "x.png", Hints{})
	assert.Error(t, err)
}

func TestConfidenceMonotonic(t *testing.T) {
	sparse := NewMetadata("a.dxf", constants.DXF)
	scoreConfidence(sparse, 0)

	rich := NewMetadata("a.dxf", constants.DXF)
	rich.ClientCode = "CL0001"
	rich.ProjectCode = "JB-2025-10-CL0001-001"
	rich.PartName = "Bracket"
	rich.Material = "Mild Steel"
	rich.ThicknessMM = 5
	rich.Quantity = 14
	scoreConfidence(rich, 0.15)

	assert.Greater(t, rich.Confidence, sparse.Confidence)
	assert.LessOrEqual(t, rich.Confidence, 1.0)
	assert.GreaterOrEqual(t, sparse.Confidence, 0.0)
}

func TestHintsValidation(t *testing.T) {
	assert.NoError(t, Hints{ClientCode: "CL-0042"}.Validate())
	assert.NoError(t, Hints{ClientCode: "CL0042"}.Validate())
	assert.Error(t, Hints{ClientCode: "client42"}.Validate())
	assert.Error(t, Hints{ProjectCode: "JB-2025-CL0042"}.Validate())
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(nil)
	for _, ft := range []constants.FileType{constants.DXF, constants.CUTJOB, constants.PDF, constants.SPREADSHEET, constants.IMAGE} {
		ex, err := reg.For(ft)
		require.NoError(t, err)
		assert.NotEmpty(t, ex.Name())
	}
	_, err := reg.For(constants.UNKNOWN)
	assert.Error(t, err)
}
