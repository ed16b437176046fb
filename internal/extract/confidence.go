package extract

// Confidence scoring is additive and capped rather than multiplicative so
// partial extractions stay comparable increment by increment.
const (
	baseScore     = 0.20
	fieldScore    = 0.10
	quantityScore = 0.05

	// CompleteThreshold is the score a metadata value reaches when all
	// five core fields are present.
	CompleteThreshold = 0.75
)

// scoreConfidence computes the metadata confidence: a fixed base for a
// clean structural parse, a fixed increment per core field present, a
// small increment for an explicit quantity, plus format-specific bonuses
// (which may be negative, e.g. the OCR-unavailable penalty). The result
// is clamped to [0, 1] and stored on the metadata.
func scoreConfidence(m *Metadata, formatBonus float64) {
	score := baseScore
	if m.ClientCode != "" {
		score += fieldScore
	}
	if m.ProjectCode != "" {
		score += fieldScore
	}
	if m.PartName != "" {
		score += fieldScore
	}
	if m.Material != "" {
		score += fieldScore
	}
	if m.ThicknessMM > 0 {
		score += fieldScore
	}
	if m.Quantity > 1 {
		score += quantityScore
	}
	score += formatBonus

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	m.Confidence = score
}
