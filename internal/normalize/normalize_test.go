package normalize

import "testing"

func TestDetectMaterial_SpecificBeforeGeneric(t *testing.T) {
	name, ok := DetectMaterial("t=3mm galvanized plate")
	if !ok || name != "Galvanized Steel" {
		t.Fatalf("got %q ok=%v, want Galvanized Steel", name, ok)
	}

	name, ok = DetectMaterial("stainless steel sheet")
	if !ok || name != "Stainless Steel" {
		t.Fatalf("got %q ok=%v, want Stainless Steel", name, ok)
	}

	name, ok = DetectMaterial("plain steel bracket")
	if !ok || name != "Mild Steel" {
		t.Fatalf("got %q ok=%v, want Mild Steel", name, ok)
	}
}

func TestDetectMaterial_ShortCodeBoundaries(t *testing.T) {
	if name, ok := DetectMaterial("cut from ms 3mm"); !ok || name != "Mild Steel" {
		t.Fatalf("short code ms on boundary: got %q ok=%v", name, ok)
	}
	// "al" inside "metal" or "ms" inside "forms" must not fire.
	if name, ok := DetectMaterial("sheet metal forms"); ok {
		t.Fatalf("false positive inside words: got %q", name)
	}
	if name, ok := DetectMaterial("msomething else"); ok {
		t.Fatalf("ms followed by letters should not match: got %q", name)
	}
}

func TestDetectMaterial_Idempotent(t *testing.T) {
	a, _ := DetectMaterial("galvanized steel t=3mm")
	b, _ := DetectMaterial("galvanized steel t=3mm")
	if a != b {
		t.Fatalf("detection not deterministic: %q vs %q", a, b)
	}
}

func TestDetectThickness(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"t=5mm", 5.0, true},
		{"thickness: 10", 10.0, true},
		{"6.5mm thick", 6.5, true},
		{"T = 12 mm", 12.0, true},
		{"no dimensions here", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := DetectThickness(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DetectThickness(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDetectQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"qty: 5", 5, true},
		{"quantity: 120", 120, true},
		{"x14", 14, true},
		{"x 3", 3, true},
		{"25 pcs", 25, true},
		{"qty: 99999", 0, false}, // above the sanity ceiling
		{"nothing", 0, false},
	}
	for _, tc := range tests {
		got, ok := DetectQuantity(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DetectQuantity(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDetectClientCode(t *testing.T) {
	if code, ok := DetectClientCode("invoice for CL-0042 attached"); !ok || code != "CL0042" {
		t.Fatalf("got %q ok=%v, want CL0042", code, ok)
	}
	if code, ok := DetectClientCode("part CL0007 rev2"); !ok || code != "CL0007" {
		t.Fatalf("got %q ok=%v, want CL0007", code, ok)
	}
	if _, ok := DetectClientCode("CLX-12"); ok {
		t.Fatal("malformed code must not match")
	}
}

func TestDetectProjectCode(t *testing.T) {
	code, ok := DetectProjectCode("job JB-2025-10-CL0001-001 bracket set")
	if !ok || code != "JB-2025-10-CL0001-001" {
		t.Fatalf("got %q ok=%v", code, ok)
	}
	// Underscore separators normalize to the canonical hyphen layout.
	code, ok = DetectProjectCode("jb_2025_10_cl0001_003")
	if !ok || code != "JB-2025-10-CL0001-003" {
		t.Fatalf("got %q ok=%v", code, ok)
	}
	if _, ok := DetectProjectCode("JB-2025-CL0001"); ok {
		t.Fatal("truncated code must not match")
	}
}
