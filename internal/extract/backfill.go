package extract

import (
	"strings"

	"github.com/beerberidie/cutflow/internal/normalize"
)

// backfillFromText runs pass 3: the shared text heuristics over free text
// gathered during content extraction (layer names, labels, OCR output,
// cell values), filling only fields still empty.
func (m *Metadata) backfillFromText(texts ...string) {
	joined := strings.Join(texts, "\n")
	if strings.TrimSpace(joined) == "" {
		return
	}

	if m.Material == "" {
		if mat, ok := normalize.DetectMaterial(joined); ok {
			m.Material = mat
		}
	}
	if m.ThicknessMM == 0 {
		if t, ok := normalize.DetectThickness(joined); ok {
			m.ThicknessMM = t
		}
	}
	if m.Quantity <= 1 {
		if q, ok := normalize.DetectQuantity(joined); ok {
			m.Quantity = q
		}
	}
	if m.ClientCode == "" {
		if c, ok := normalize.DetectClientCode(joined); ok {
			m.ClientCode = c
		}
	}
	if m.ProjectCode == "" {
		if p, ok := normalize.DetectProjectCode(joined); ok {
			m.ProjectCode = p
		}
	}
}
