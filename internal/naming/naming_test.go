package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_FullGrammar(t *testing.T) {
	f := Fields{
		ClientCode:  "CL0001",
		ProjectCode: "JB-2025-10-CL0001-001",
		PartName:    "Bracket Left",
		Material:    "Mild Steel",
		ThicknessMM: 5,
		Quantity:    14,
		Version:     2,
		Ext:         "dxf",
	}
	assert.Equal(t, "CL0001-JB-2025-10-CL0001-001-BracketLeft-MS-5mm-x14-v2.dxf", Generate(f))
}

func TestGenerate_Placeholders(t *testing.T) {
	f := Fields{PartName: "///", Ext: "pdf"}
	assert.Equal(t, "UNKNOWN-NOPROJECT-Part-UNK.pdf", Generate(f))
}

func TestGenerate_OmitsUnitSuffixes(t *testing.T) {
	f := Fields{
		ClientCode: "CL0002",
		PartName:   "Plate",
		Material:   "Acrylic",
		Quantity:   1,
		Version:    1,
		Ext:        "dxf",
	}
	assert.Equal(t, "CL0002-NOPROJECT-Plate-ACR.dxf", Generate(f))
}

func TestGenerate_FractionalThickness(t *testing.T) {
	f := Fields{ClientCode: "CL0003", PartName: "Gusset", Material: "Aluminium", ThicknessMM: 6.5, Ext: "dxf"}
	assert.Equal(t, "CL0003-NOPROJECT-Gusset-AL-6.5mm.dxf", Generate(f))
}

func TestRoundTrip_FullGrammar(t *testing.T) {
	cases := []Fields{
		{
			ClientCode:  "CL0001",
			ProjectCode: "JB-2025-10-CL0001-001",
			PartName:    "BracketLeft",
			Material:    "Mild Steel",
			ThicknessMM: 5,
			Quantity:    14,
			Version:     3,
			Ext:         "dxf",
		},
		{
			ClientCode: "CL0042",
			PartName:   "Lid",
			Material:   "Acrylic",
			Quantity:   1,
			Version:    1,
			Ext:        "lbrn2",
		},
		{
			PartName: "Spacer",
			Quantity: 1,
			Version:  1,
			Ext:      "pdf",
		},
		{
			ClientCode:  "CL0009",
			ProjectCode: "QT-2024-01-CL0009-012",
			PartName:    "Panel",
			Material:    "Galvanized Steel",
			ThicknessMM: 2.5,
			Quantity:    1,
			Version:     1,
			Ext:         "dxf",
		},
	}
	for _, want := range cases {
		name := Generate(want)
		got, ok := Parse(name)
		require.True(t, ok, "parse %q", name)
		assert.Equal(t, want.ClientCode, got.ClientCode, name)
		assert.Equal(t, want.ProjectCode, got.ProjectCode, name)
		assert.Equal(t, want.PartName, got.PartName, name)
		assert.Equal(t, want.Material, got.Material, name)
		assert.Equal(t, want.ThicknessMM, got.ThicknessMM, name)
		assert.Equal(t, want.Quantity, got.Quantity, name)
		assert.Equal(t, want.Version, got.Version, name)
		assert.Equal(t, want.Ext, got.Ext, name)
	}
}

func TestParse_LegacyGrammar(t *testing.T) {
	got, ok := Parse("1234-FlangePlate-SS-3mm-x5.dxf")
	require.True(t, ok)
	assert.Equal(t, "CL1234", got.ClientCode)
	assert.Equal(t, "FlangePlate", got.PartName)
	assert.Equal(t, "Stainless Steel", got.Material)
	assert.Equal(t, 3.0, got.ThicknessMM)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, 1, got.Version)

	// No quantity suffix defaults to 1; short codes zero-pad.
	got, ok = Parse("42-Bracket-MS-10mm.dxf")
	require.True(t, ok)
	assert.Equal(t, "CL0042", got.ClientCode)
	assert.Equal(t, 1, got.Quantity)
}

func TestParse_V1SuffixAccepted(t *testing.T) {
	got, ok := Parse("CL0001-JB-2025-10-CL0001-001-BracketLeft-MS-5mm-x14-v1.lbrn2")
	require.True(t, ok)
	assert.Equal(t, "CL0001", got.ClientCode)
	assert.Equal(t, "JB-2025-10-CL0001-001", got.ProjectCode)
	assert.Equal(t, "Mild Steel", got.Material)
	assert.Equal(t, 14, got.Quantity)
	assert.Equal(t, 1, got.Version)
}

func TestParse_Rejects(t *testing.T) {
	for _, name := range []string{
		"random_file.dxf",
		"CL1-Part-MS-3mm.dxf",    // malformed client code
		"CL0001-NOPROJECT.dxf",   // too few tokens
		"notes-about-stuff.txt",  // words, not grammar
	} {
		if _, ok := Parse(name); ok {
			t.Errorf("Parse(%q) should fail", name)
		}
	}
}
