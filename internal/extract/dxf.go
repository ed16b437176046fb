package extract

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
)

// DXFExtractor parses vector-CAD drawings in the DXF group-code format.
type DXFExtractor struct{}

func NewDXFExtractor() *DXFExtractor { return &DXFExtractor{} }

func (e *DXFExtractor) Name() string { return "dxf-parser/1" }

var holeLayerPatterns = []string{"hole", "holes", "drill", "cutout", "pierce"}

// dxfEntity is one accumulated entity from the ENTITIES section.
type dxfEntity struct {
	typ    string
	layer  string
	xs, ys []float64 // group 10/20 points in order
	x2, y2 float64   // group 11/21 second point
	hasP2  bool
	radius float64
	startA float64
	endA   float64
	hasArc bool
	closed bool
	text   string
}

func (e *DXFExtractor) Parse(ctx context.Context, data []byte, originalFilename string, hints Hints) (*Metadata, error) {
	if err := checkInput(data, hints); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entities, err := scanDXFEntities(data)
	if err != nil {
		return nil, err
	}

	raw := buildDXFRaw(entities)
	md := NewMetadata(originalFilename, constants.DXF)
	md.FileSize = int64(len(data))
	md.MIMEHint = "image/vnd.dxf"
	md.Raw = raw

	md.applyFilename()
	md.applyHints(hints)

	texts := append(append([]string{}, raw.Layers...), raw.Labels...)
	md.backfillFromText(texts...)

	var bonus float64
	if raw.BoundsValid {
		bonus += 0.10
	}
	if len(raw.Layers) > 0 || len(raw.EntityCounts) > 0 {
		bonus += 0.05
	}
	scoreConfidence(md, bonus)
	return md, nil
}

// scanDXFEntities walks the group-code/value pair stream and collects
// entities from the ENTITIES section.
func scanDXFEntities(data []byte) ([]dxfEntity, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		entities   []dxfEntity
		current    *dxfEntity
		inEntities bool
		sawSection bool
		pendingVtx *dxfEntity // owning POLYLINE while reading VERTEX rows
		pairs      int
	)

	flush := func() {
		if current != nil && current.typ != "" {
			entities = append(entities, *current)
		}
		current = nil
	}

	for {
		code, value, ok, err := nextDXFPair(sc)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pairs++

		if code == 0 {
			switch value {
			case "SECTION":
				sawSection = true
			case "ENDSEC":
				flush()
				pendingVtx = nil
				inEntities = false
			case "EOF":
				flush()
			case "VERTEX":
				// Vertices accumulate onto the owning POLYLINE.
				if current != nil && current.typ == "POLYLINE" {
					pendingVtx = current
					current = &dxfEntity{typ: "VERTEX"}
				} else if pendingVtx != nil {
					if current != nil && len(current.xs) > 0 {
						pendingVtx.xs = append(pendingVtx.xs, current.xs...)
						pendingVtx.ys = append(pendingVtx.ys, current.ys...)
					}
					current = &dxfEntity{typ: "VERTEX"}
				}
			case "SEQEND":
				if current != nil && current.typ == "VERTEX" && pendingVtx != nil && len(current.xs) > 0 {
					pendingVtx.xs = append(pendingVtx.xs, current.xs...)
					pendingVtx.ys = append(pendingVtx.ys, current.ys...)
				}
				if pendingVtx != nil {
					entities = append(entities, *pendingVtx)
				}
				current = nil
				pendingVtx = nil
			default:
				if inEntities && isDXFEntityType(value) {
					flush()
					current = &dxfEntity{typ: value}
				} else {
					flush()
				}
			}
			continue
		}

		if code == 2 && value == "ENTITIES" {
			inEntities = true
			continue
		}
		if current == nil {
			continue
		}

		switch code {
		case 8:
			current.layer = value
		case 10:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.xs = append(current.xs, v)
			}
		case 20:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.ys = append(current.ys, v)
			}
		case 11:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.x2, current.hasP2 = v, true
			}
		case 21:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.y2 = v
			}
		case 40:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.radius = v
			}
		case 50:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.startA, current.hasArc = v, true
			}
		case 51:
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				current.endA = v
			}
		case 70:
			if v, err := strconv.Atoi(value); err == nil {
				current.closed = v&1 != 0
			}
		case 1:
			current.text = value
		}
	}

	if pairs == 0 || !sawSection {
		return nil, common.NewParseError("not a DXF group-code stream", nil)
	}
	return entities, nil
}

// nextDXFPair reads one group-code line and one value line.
func nextDXFPair(sc *bufio.Scanner) (code int, value string, ok bool, err error) {
	if !sc.Scan() {
		return 0, "", false, sc.Err()
	}
	codeStr := strings.TrimSpace(sc.Text())
	if codeStr == "" && !sc.Scan() {
		return 0, "", false, sc.Err()
	}
	code, convErr := strconv.Atoi(codeStr)
	if convErr != nil {
		return 0, "", false, common.NewParseError("malformed DXF group code "+strconv.Quote(codeStr), nil)
	}
	if !sc.Scan() {
		return 0, "", false, common.NewParseError("truncated DXF pair", nil)
	}
	return code, strings.TrimSpace(sc.Text()), true, nil
}

func isDXFEntityType(s string) bool {
	switch s {
	case "LINE", "CIRCLE", "ARC", "LWPOLYLINE", "POLYLINE", "TEXT", "MTEXT", "POINT", "SPLINE", "ELLIPSE", "INSERT":
		return true
	}
	return false
}

func buildDXFRaw(entities []dxfEntity) *DXFRaw {
	raw := &DXFRaw{EntityCounts: map[string]int{}}
	layerSet := map[string]struct{}{}

	bounds := BoundingBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	extend := func(x, y float64) {
		bounds.MinX = math.Min(bounds.MinX, x)
		bounds.MinY = math.Min(bounds.MinY, y)
		bounds.MaxX = math.Max(bounds.MaxX, x)
		bounds.MaxY = math.Max(bounds.MaxY, y)
	}

	var perimeter float64
	for _, ent := range entities {
		raw.EntityCounts[ent.typ]++
		if ent.layer != "" {
			layerSet[ent.layer] = struct{}{}
		}

		for i := range ent.xs {
			if i < len(ent.ys) {
				extend(ent.xs[i], ent.ys[i])
			}
		}

		switch ent.typ {
		case "LINE":
			if len(ent.xs) > 0 && len(ent.ys) > 0 && ent.hasP2 {
				extend(ent.x2, ent.y2)
				perimeter += math.Hypot(ent.x2-ent.xs[0], ent.y2-ent.ys[0])
			}
		case "CIRCLE":
			if len(ent.xs) > 0 && len(ent.ys) > 0 && ent.radius > 0 {
				extend(ent.xs[0]-ent.radius, ent.ys[0]-ent.radius)
				extend(ent.xs[0]+ent.radius, ent.ys[0]+ent.radius)
				perimeter += 2 * math.Pi * ent.radius
			}
			if isHoleLayer(ent.layer) {
				raw.HoleCount++
			}
		case "ARC":
			if len(ent.xs) > 0 && len(ent.ys) > 0 && ent.radius > 0 && ent.hasArc {
				extend(ent.xs[0]-ent.radius, ent.ys[0]-ent.radius)
				extend(ent.xs[0]+ent.radius, ent.ys[0]+ent.radius)
				sweep := ent.endA - ent.startA
				for sweep <= 0 {
					sweep += 360
				}
				perimeter += 2 * math.Pi * ent.radius * (sweep / 360)
			}
		case "LWPOLYLINE", "POLYLINE":
			n := len(ent.xs)
			if n > len(ent.ys) {
				n = len(ent.ys)
			}
			for i := 1; i < n; i++ {
				perimeter += math.Hypot(ent.xs[i]-ent.xs[i-1], ent.ys[i]-ent.ys[i-1])
			}
			if ent.closed && n > 2 {
				perimeter += math.Hypot(ent.xs[0]-ent.xs[n-1], ent.ys[0]-ent.ys[n-1])
			}
		case "TEXT", "MTEXT":
			if ent.text != "" {
				raw.Labels = append(raw.Labels, ent.text)
			}
		}
	}

	raw.PerimeterMM = perimeter
	if bounds.Valid() {
		raw.Bounds = bounds
		raw.BoundsValid = true
	}

	for l := range layerSet {
		raw.Layers = append(raw.Layers, l)
	}
	sort.Strings(raw.Layers)
	return raw
}

func isHoleLayer(layer string) bool {
	lower := strings.ToLower(layer)
	for _, p := range holeLayerPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
