// Package naming turns normalized metadata into canonical filenames and
// back. The canonical grammar is
//
//	ClientCode-ProjectCode-PartName-MaterialCode-ThicknessMM-xQuantity-vVersion.ext
//
// with UNKNOWN / NOPROJECT / Part / UNK placeholders for absent fields and
// the xN / vN suffixes omitted when the value is 1. The parser also
// understands the legacy grammar NumericCode-PartName-MaterialCode-
// ThicknessMM-xQuantity used before project codes existed.
package naming

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/beerberidie/cutflow/constants"
)

// Fields carries the filename-encoded subset of extraction metadata.
type Fields struct {
	ClientCode  string
	ProjectCode string
	PartName    string
	Material    string // canonical material name, e.g. "Mild Steel"
	ThicknessMM float64
	Quantity    int
	Version     int
	Ext         string // without dot, lowercased
}

const (
	placeholderClient  = "UNKNOWN"
	placeholderProject = "NOPROJECT"
	placeholderPart    = "Part"
	placeholderMat     = "UNK"
)

var (
	reClientTok  = regexp.MustCompile(`^CL\d{4}$`)
	reNumericTok = regexp.MustCompile(`^\d{1,6}$`)
	reProjectTok = regexp.MustCompile(`^[A-Z]{2,4}-\d{4}-\d{2}-CL\d{4}-\d{3}$`)
	reThickTok   = regexp.MustCompile(`^(\d+(?:\.\d+)?)mm$`)
	reQtyTok     = regexp.MustCompile(`^x(\d+)$`)
	reVerTok     = regexp.MustCompile(`^v(\d+)$`)
	reNonAlnum   = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// SanitizePart strips everything but letters and digits from a part name.
// An empty result falls back to "Part".
func SanitizePart(name string) string {
	s := reNonAlnum.ReplaceAllString(name, "")
	if s == "" {
		return placeholderPart
	}
	return s
}

// FormatThickness renders a thickness value with the mm suffix, integer
// formatted when whole.
func FormatThickness(mm float64) string {
	if mm == math.Trunc(mm) {
		return fmt.Sprintf("%dmm", int64(mm))
	}
	return strconv.FormatFloat(mm, 'f', -1, 64) + "mm"
}

// Generate builds the canonical filename for the given fields.
func Generate(f Fields) string {
	tokens := make([]string, 0, 7)

	client := f.ClientCode
	if client == "" {
		client = placeholderClient
	}
	tokens = append(tokens, client)

	project := f.ProjectCode
	if project == "" {
		project = placeholderProject
	}
	tokens = append(tokens, project)

	tokens = append(tokens, SanitizePart(f.PartName))

	mat := placeholderMat
	if f.Material != "" {
		mat = constants.MaterialCode(f.Material)
	}
	tokens = append(tokens, mat)

	if f.ThicknessMM > 0 {
		tokens = append(tokens, FormatThickness(f.ThicknessMM))
	}
	if f.Quantity > 1 {
		tokens = append(tokens, fmt.Sprintf("x%d", f.Quantity))
	}
	if f.Version > 1 {
		tokens = append(tokens, fmt.Sprintf("v%d", f.Version))
	}

	name := strings.Join(tokens, "-")
	if f.Ext != "" {
		name += "." + strings.ToLower(strings.TrimPrefix(f.Ext, "."))
	}
	return name
}

// Parse recovers fields from a canonical filename. It accepts both the
// full grammar and the legacy grammar; ok is false when neither matches.
func Parse(name string) (Fields, bool) {
	base := name
	var ext string
	if i := strings.LastIndex(base, "."); i > 0 {
		ext = strings.ToLower(base[i+1:])
		base = base[:i]
	}

	tokens := strings.Split(base, "-")
	if f, ok := parseFull(tokens, ext); ok {
		return f, true
	}
	if f, ok := parseLegacy(tokens, ext); ok {
		return f, true
	}
	return Fields{}, false
}

func parseFull(tokens []string, ext string) (Fields, bool) {
	if len(tokens) < 4 {
		return Fields{}, false
	}
	f := Fields{Quantity: 1, Version: 1, Ext: ext}

	switch {
	case tokens[0] == placeholderClient:
	case reClientTok.MatchString(tokens[0]):
		f.ClientCode = tokens[0]
	default:
		return Fields{}, false
	}
	i := 1

	// The project code itself contains hyphens, so it spans five tokens.
	switch {
	case tokens[i] == placeholderProject:
		i++
	case len(tokens) >= i+5 && reProjectTok.MatchString(strings.Join(tokens[i:i+5], "-")):
		f.ProjectCode = strings.Join(tokens[i:i+5], "-")
		i += 5
	default:
		return Fields{}, false
	}

	if i >= len(tokens) {
		return Fields{}, false
	}
	if tokens[i] != placeholderPart {
		f.PartName = tokens[i]
	}
	i++

	if i >= len(tokens) {
		return Fields{}, false
	}
	if tokens[i] != placeholderMat {
		mat, ok := constants.MaterialFromCode(tokens[i])
		if !ok {
			return Fields{}, false
		}
		f.Material = mat
	}
	i++

	if i < len(tokens) {
		if m := reThickTok.FindStringSubmatch(tokens[i]); m != nil {
			f.ThicknessMM, _ = strconv.ParseFloat(m[1], 64)
			i++
		}
	}
	if i < len(tokens) {
		if m := reQtyTok.FindStringSubmatch(tokens[i]); m != nil {
			f.Quantity, _ = strconv.Atoi(m[1])
			i++
		}
	}
	if i < len(tokens) {
		if m := reVerTok.FindStringSubmatch(tokens[i]); m != nil {
			f.Version, _ = strconv.Atoi(m[1])
			i++
		}
	}
	if i != len(tokens) {
		return Fields{}, false
	}
	if f.Quantity < 1 {
		f.Quantity = 1
	}
	if f.Version < 1 {
		f.Version = 1
	}
	return f, true
}

func parseLegacy(tokens []string, ext string) (Fields, bool) {
	if len(tokens) < 4 || len(tokens) > 5 {
		return Fields{}, false
	}
	if !reNumericTok.MatchString(tokens[0]) {
		return Fields{}, false
	}
	f := Fields{Quantity: 1, Version: 1, Ext: ext}

	// Legacy numeric codes are old client numbers; short ones map onto
	// the modern CL#### layout.
	if len(tokens[0]) <= 4 {
		f.ClientCode = "CL" + strings.Repeat("0", 4-len(tokens[0])) + tokens[0]
	}

	f.PartName = tokens[1]
	mat, ok := constants.MaterialFromCode(tokens[2])
	if !ok {
		return Fields{}, false
	}
	f.Material = mat

	m := reThickTok.FindStringSubmatch(tokens[3])
	if m == nil {
		return Fields{}, false
	}
	f.ThicknessMM, _ = strconv.ParseFloat(m[1], 64)

	if len(tokens) == 5 {
		qm := reQtyTok.FindStringSubmatch(tokens[4])
		if qm == nil {
			return Fields{}, false
		}
		f.Quantity, _ = strconv.Atoi(qm[1])
		if f.Quantity < 1 {
			f.Quantity = 1
		}
	}
	return f, true
}
