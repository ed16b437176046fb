// Package normalize holds the stateless text heuristics shared by every
// extractor: material, thickness, quantity, and client/project code
// detection over free text gathered from filenames, layers, labels, cell
// values, and OCR output.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/beerberidie/cutflow/constants"
)

var (
	reThickness = regexp.MustCompile(`(?i)t\s*=\s*(\d+(?:\.\d+)?)\s*mm|(\d+(?:\.\d+)?)\s*mm|thickness\s*:?\s*(\d+(?:\.\d+)?)`)
	reQuantity  = regexp.MustCompile(`(?i)qty\s*:?\s*(\d+)|quantity\s*:?\s*(\d+)|x\s*(\d+)\b|(\d+)\s*pcs\b`)
	reClient    = regexp.MustCompile(`(?i)\bCL-?(\d{4})\b`)
	reProject   = regexp.MustCompile(`(?i)\b([A-Z]{2,4})[-_ ](\d{4})[-_ ](\d{2})[-_ ](CL\d{4})[-_ ](\d{3})\b`)
)

// DetectMaterial tests free text against the material family table, most
// specific patterns first. Multi-word patterns use substring match; short
// ambiguous codes (ms, ss, al, ...) match only on a word boundary so they
// never fire inside unrelated words.
func DetectMaterial(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, f := range constants.MaterialFamilies {
		for _, p := range f.Patterns {
			if strings.Contains(lower, p) {
				return f.Name, true
			}
		}
		for _, code := range f.ShortCodes {
			if matchShortCode(lower, code) {
				return f.Name, true
			}
		}
	}
	return "", false
}

// matchShortCode reports whether code occurs in text immediately preceded
// by start-of-text or a space and not followed by another letter or digit.
func matchShortCode(text, code string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], code)
		if j < 0 {
			return false
		}
		pos := i + j
		end := pos + len(code)
		startOK := pos == 0 || text[pos-1] == ' '
		endOK := end == len(text) || !isAlnum(text[end])
		if startOK && endOK {
			return true
		}
		i = pos + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// DetectThickness recognizes "t=5mm", "6.5mm", and "thickness: 10" and
// returns the first numeric capture that matched.
func DetectThickness(text string) (float64, bool) {
	m := reThickness.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		v, err := strconv.ParseFloat(g, 64)
		if err != nil || v <= 0 {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// DetectQuantity recognizes "qty: n", "quantity: n", "x n", and "n pcs".
// Results outside [1, 10000] are rejected as spurious.
func DetectQuantity(text string) (int, bool) {
	m := reQuantity.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		n, err := strconv.Atoi(g)
		if err != nil || n < 1 || n > 10000 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// DetectClientCode recognizes the CL-#### client code shape and returns
// it in canonical form (CL0001).
func DetectClientCode(text string) (string, bool) {
	m := reClient.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return "CL" + m[1], true
}

// DetectProjectCode recognizes the four-segment project code
// (PREFIX-YYYY-MM-CLXXXX-###) and returns it in the canonical hyphen
// layout.
func DetectProjectCode(text string) (string, bool) {
	m := reProject.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	parts := []string{
		strings.ToUpper(m[1]),
		m[2],
		m[3],
		strings.ToUpper(m[4]),
		m[5],
	}
	return strings.Join(parts, "-"), true
}
