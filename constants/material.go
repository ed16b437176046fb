package constants

import "strings"

// MaterialFamily is one recognized material with its filename short code
// and the free-text patterns that identify it. Patterns are tested in
// table order, most specific first, so "galvanized steel" never falls
// through to generic "steel".
type MaterialFamily struct {
	Name     string
	Code     string
	Patterns []string
	// ShortCodes are ambiguous abbreviations that only match on a word
	// boundary (start of text or preceded by a space).
	ShortCodes []string
}

var MaterialFamilies = []MaterialFamily{
	{Name: "Galvanized Steel", Code: "GALV", Patterns: []string{"galvanized steel", "galvanised steel", "galvanized", "galvanised", "galv steel"}, ShortCodes: []string{"galv"}},
	{Name: "Stainless Steel", Code: "SS", Patterns: []string{"stainless steel", "stainless", "inox"}, ShortCodes: []string{"ss"}},
	{Name: "Mild Steel", Code: "MS", Patterns: []string{"mild steel", "carbon steel", "steel"}, ShortCodes: []string{"ms"}},
	{Name: "Aluminium", Code: "AL", Patterns: []string{"aluminium", "aluminum", "alu"}, ShortCodes: []string{"al"}},
	{Name: "Brass", Code: "BR", Patterns: []string{"brass"}, ShortCodes: []string{"br"}},
	{Name: "Copper", Code: "CU", Patterns: []string{"copper"}, ShortCodes: []string{"cu"}},
	{Name: "Polycarbonate", Code: "PC", Patterns: []string{"polycarbonate", "lexan"}, ShortCodes: []string{"pc"}},
	{Name: "Acrylic", Code: "ACR", Patterns: []string{"acrylic", "perspex", "plexiglass", "pmma"}, ShortCodes: []string{"acr"}},
	{Name: "MDF", Code: "MDF", Patterns: []string{"mdf", "fibreboard", "fiberboard"}, ShortCodes: []string{"mdf"}},
	{Name: "Plywood", Code: "PLY", Patterns: []string{"plywood", "birch ply"}, ShortCodes: []string{"ply"}},
	{Name: "Cardboard", Code: "CARD", Patterns: []string{"cardboard", "corrugated"}, ShortCodes: []string{"card"}},
	{Name: "Leather", Code: "LTH", Patterns: []string{"leather"}, ShortCodes: []string{"lth"}},
}

// MaterialCode returns the filename short code for a material name, or
// "UNK" when the material is not in the table.
func MaterialCode(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, f := range MaterialFamilies {
		if normalized == strings.ToLower(f.Name) {
			return f.Code
		}
	}
	return "UNK"
}

// MaterialFromCode resolves a filename short code back to the canonical
// material name.
func MaterialFromCode(code string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, f := range MaterialFamilies {
		if normalized == f.Code {
			return f.Name, true
		}
	}
	return "", false
}
