package service

import (
	"math"
	"testing"
)

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "supply of cement", "supply of cement", 1.0},
		{"containment boost", "cement", "supply of cement grade 40", 1.0},
		{"case and punctuation insensitive", "Steel, Rebar (12mm)", "steel rebar 12mm", 1.0},
		{"disjoint", "excavation works", "electrical wiring", 0},
		{"empty side", "", "supply of cement", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenSetRatio(tt.a, tt.b); got != tt.want {
				t.Errorf("TokenSetRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTokenSetRatioPartialOverlap(t *testing.T) {
	// 4 vs 4 tokens, 2 shared, neither contained: Dice = 2*2/8 = 0.5
	got := TokenSetRatio("supply structural steel beams", "paint structural steel columns")
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestNormalizeItemNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" 1.01 ", "1.01"},
		{"A-2.3.", "a-2.3"},
		{"1 . 01", "1.01"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeItemNumber(tt.in); got != tt.want {
			t.Errorf("normalizeItemNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUOMFactor(t *testing.T) {
	tests := []struct {
		from, to string
		factor   float64
		ok       bool
	}{
		{"kg", "t", 0.001, true},
		{"t", "kg", 1000, true},
		{"Tonne", "kg", 1000, true}, // synonym
		{"sqm", "m2", 1, true},      // synonym to canonical, same unit
		{"pcs", "ea", 1, true},
		{"m", "kg", 0, false}, // length vs mass
		{"bag", "m3", 0, false},
	}
	for _, tt := range tests {
		factor, ok := UOMFactor(tt.from, tt.to)
		if ok != tt.ok || (ok && math.Abs(factor-tt.factor) > 1e-9) {
			t.Errorf("UOMFactor(%q, %q) = (%v, %v), want (%v, %v)",
				tt.from, tt.to, factor, ok, tt.factor, tt.ok)
		}
	}
}

func TestMedianOf(t *testing.T) {
	if got := medianOf([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd median = %v, want 2", got)
	}
	if got := medianOf([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even median = %v, want 2.5", got)
	}
	if got := medianOf(nil); got != 0 {
		t.Errorf("empty median = %v, want 0", got)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1,250.50", 1250.50},
		{"SAR 300", 300},
		{" 42 ", 42},
		{"-7.5", -7.5},
		{"", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		if got := parseNumber(tt.in); got != tt.want {
			t.Errorf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
