package reshape

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "revenue", "revenue"},
		{"spaces to underscore", "Unit Price", "Unit_Price"},
		{"hash becomes count", "# of items", "count_of_items"},
		{"diacritics stripped", "Příliš žluťoučký", "Prilis_zlutoucky"},
		{"specials removed", "total ($)", "total"},
		{"newlines removed", "line\none", "lineone"},
		{"trimmed", "  padded  ", "padded"},
		{"too short", "a", "empty"},
		{"empty", "", "empty"},
		{"only specials", "!!", "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_Idempotent(t *testing.T) {
	inputs := []string{"Unit Price", "# count", "Příliš", "x", "", "already_clean_2"}
	for _, s := range inputs {
		once := SanitizeName(s)
		twice := SanitizeName(once)
		if once != twice {
			t.Errorf("SanitizeName not idempotent for %q: %q != %q", s, once, twice)
		}
	}
}

func TestSanitizeName_MinLength(t *testing.T) {
	inputs := []string{"", "a", "!", " ", "#", "ab", "žž"}
	for _, s := range inputs {
		if got := SanitizeName(s); len(got) < 2 {
			t.Errorf("SanitizeName(%q) = %q, shorter than 2 chars", s, got)
		}
	}
}
