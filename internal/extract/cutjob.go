package extract

import (
	"context"
	"encoding/xml"
	"math"
	"strconv"
	"strings"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// CutJobExtractor parses laser cut-job files (the LightBurn-style XML
// dialect used by .lbrn/.lbrn2 files).
type CutJobExtractor struct{}

func NewCutJobExtractor() *CutJobExtractor { return &CutJobExtractor{} }

func (e *CutJobExtractor) Name() string { return "cutjob-parser/1" }

// Wire structs for the XML dialect. Scalar settings are encoded as child
// elements carrying a Value attribute.
type lbValue struct {
	Value string `xml:"Value,attr"`
}

type lbCutSetting struct {
	Type      string  `xml:"type,attr"`
	Name      lbValue `xml:"name"`
	MaxPower  lbValue `xml:"maxPower"`
	Speed     lbValue `xml:"speed"`
	NumPasses lbValue `xml:"numPasses"`
}

type lbShape struct {
	Type     string    `xml:"Type,attr"`
	StrAttr  string    `xml:"Str,attr"`
	StrElem  string    `xml:"Str"`
	Width    string    `xml:"W,attr"`
	Height   string    `xml:"H,attr"`
	XForm    string    `xml:"XForm"`
	Children []lbShape `xml:"Children>Shape"`
}

type lbProject struct {
	XMLName        xml.Name
	DeviceName     string         `xml:"DeviceName,attr"`
	MaterialHeight string         `xml:"MaterialHeight,attr"`
	CutSettings    []lbCutSetting `xml:"CutSetting"`
	Shapes         []lbShape      `xml:"Shape"`
}

func (e *CutJobExtractor) Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error) {
	if err := checkInput(data, hints); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var proj lbProject
	if err := xml.Unmarshal(data, &proj); err != nil {
		return nil, common.NewParseError("invalid cut-job XML", err)
	}
	if proj.DeviceName == "" && len(proj.CutSettings) == 0 && len(proj.Shapes) == 0 {
		return nil, common.NewParseError("no recognizable cut-job content", nil)
	}

	raw := buildCutJobRaw(&proj)
	md := NewMetadata(originalFilename, constants.CUTJOB)
	md.FileSize = int64(len(data))
	md.MIMEHint = "application/xml"
	md.Raw = raw

	md.applyFilename()
	md.applyHints(hints)

	texts := append([]string{}, raw.Texts...)
	for _, cs := range raw.CutSettings {
		texts = append(texts, cs.Name)
	}
	md.backfillFromText(texts...)
	if md.ThicknessMM == 0 && raw.MaterialHeight > 0 {
		md.ThicknessMM = raw.MaterialHeight
	}

	var bonus float64
	if len(raw.CutSettings) > 0 {
		bonus += 0.10
	}
	if len(raw.ShapeCounts) > 0 {
		bonus += 0.05
	}
	scoreConfidence(md, bonus)
	return md, nil
}

func buildCutJobRaw(proj *lbProject) *CutJobRaw {
	raw := &CutJobRaw{
		Device:      proj.DeviceName,
		ShapeCounts: map[string]int{},
	}
	if h, err := strconv.ParseFloat(proj.MaterialHeight, 64); err == nil {
		raw.MaterialHeight = h
	}

	for _, cs := range proj.CutSettings {
		setting := CutSetting{Name: cs.Name.Value}
		if setting.Name == "" {
			setting.Name = cs.Type
		}
		setting.Power, _ = strconv.ParseFloat(cs.MaxPower.Value, 64)
		setting.Speed, _ = strconv.ParseFloat(cs.Speed.Value, 64)
		setting.Passes, _ = strconv.Atoi(cs.NumPasses.Value)
		raw.CutSettings = append(raw.CutSettings, setting)
	}

	bounds := BoundingBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	var walk func(shapes []lbShape)
	walk = func(shapes []lbShape) {
		for _, s := range shapes {
			if s.Type != "" {
				raw.ShapeCounts[s.Type]++
			}
			if text := shapeText(s); text != "" {
				raw.Texts = append(raw.Texts, text)
			}
			extendShapeBounds(&bounds, s)
			walk(s.Children)
		}
	}
	walk(proj.Shapes)

	if bounds.Valid() {
		raw.Bounds = bounds
		raw.BoundsValid = true
	}
	return raw
}

func shapeText(s lbShape) string {
	if s.Type != "Text" {
		return ""
	}
	if s.StrAttr != "" {
		return s.StrAttr
	}
	return strings.TrimSpace(s.StrElem)
}

// extendShapeBounds applies the shape's transform matrix translation, plus
// its scaled extents when width/height are present. XForm carries the six
// affine terms "a b c d tx ty".
func extendShapeBounds(b *BoundingBox, s lbShape) {
	fields := strings.Fields(s.XForm)
	if len(fields) != 6 {
		return
	}
	vals := make([]float64, 6)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return
		}
		vals[i] = v
	}
	a, d, tx, ty := vals[0], vals[3], vals[4], vals[5]

	halfW, halfH := 0.0, 0.0
	if w, err := strconv.ParseFloat(s.Width, 64); err == nil {
		halfW = math.Abs(a) * w / 2
	}
	if h, err := strconv.ParseFloat(s.Height, 64); err == nil {
		halfH = math.Abs(d) * h / 2
	}

	b.MinX = math.Min(b.MinX, tx-halfW)
	b.MinY = math.Min(b.MinY, ty-halfH)
	b.MaxX = math.Max(b.MaxX, tx+halfW)
	b.MaxY = math.Max(b.MaxY, ty+halfH)
}
