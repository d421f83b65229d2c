package importer

import "testing"

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	variants := []string{"J.D. Salinger", "J. D. Salinger", "j d salinger", "J  D  SALINGER"}
	for _, variant := range variants {
		if got := NormalizeName(variant); got != "jdsalinger" {
			t.Fatalf("NormalizeName(%q) = %q, want jdsalinger", variant, got)
		}
	}

	if got := NormalizeName("Gabriel García Márquez"); got != "gabrielgarciamarquez" {
		t.Fatalf("unexpected folded name: %q", got)
	}
	if got := NormalizeName("  "); got != "" {
		t.Fatalf("expected empty key for blank input, got %q", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"The Hobbit (Middle-earth, #1)", "thehobbit"},
		{"The Hobbit", "thehobbit"},
		{"Sapiens: A Brief History of Humankind", "sapiens"},
		{"Dune [50th Anniversary Edition]", "dune"},
		{"1984", "1984"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.raw); got != tc.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
