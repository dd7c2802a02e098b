package validators

import "testing"

func TestSanitizeStringTrimsAndCaps(t *testing.T) {
	if got := SanitizeString("  shop  ", 0); got != "shop" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	// each character is three bytes
	got := SanitizeString("広告町", 7)
	if got != "広告" {
		t.Fatalf("expected two whole characters, got %q", got)
	}
}
