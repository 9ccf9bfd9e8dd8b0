package merchant

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and trim", "  NETFLIX  ", "netflix"},
		{"leading article le", "Le Fournil", "fournil"},
		{"leading article la", "La Poste", "poste"},
		{"leading article les", "Les Halles", "halles"},
		{"elided article", "L'Atelier", "atelier"},
		{"legal suffix sarl", "Boulangerie Martin SARL", "boulangerie martin"},
		{"legal suffix sa", "Carrefour SA", "carrefour"},
		{"transaction id suffix", "SPOTIFY P 12345678", "spotify p"},
		{"hyphenated id suffix", "AMAZON-2023-11-02", "amazon"},
		{"underscore id suffix", "UBER_EATS_991", "uber_eats"},
		{"suffix then id", "Acme SARL 12345", "acme"},
		{"collapse whitespace", "SNCF   CONNECT", "sncf connect"},
		{"word starting with article letters", "Lesson One", "lesson one"},
		{"sa inside word kept", "Visa", "visa"},
		{"empty", "", ""},
		{"only digits", "123456", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Le Fournil", "Carrefour SA", "Acme SARL 12345", "SPOTIFY P 12345678",
		"L'Atelier des Gourmands EURL 42", "  NETFLIX.COM 889-2 ", "", "la la la",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
