package books

import "testing"

func TestNormalizeFoldsAccentsAndCase(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Cortázar", "cortazar"},
		{"CORTAZAR", "cortazar"},
		{"Cortazar", "cortazar"},
		{"García Márquez", "garcia marquez"},
		{"AGÜERO", "aguero"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeKeepsEnye(t *testing.T) {
	if got := Normalize("El Señor Presidente"); got != "el señor presidente" {
		t.Errorf("got %q", got)
	}
	if got := Normalize("ÑANDÚ"); got != "ñandu" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeStripsPunctuation(t *testing.T) {
	cases := []struct{ in, want string }{
		{"¿Qué es la vida?", "que es la vida"},
		{"Rayuela.", "rayuela"},
		{"don quijote, (edición) - ilustrada!", "don quijote edicion ilustrada"},
		{"  espacios   dobles\t y saltos\n", "espacios dobles y saltos"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeHundredBecomesCien(t *testing.T) {
	if got := Normalize("100 años de soledad"); got != "cien años de soledad" {
		t.Errorf("got %q", got)
	}
	if got := Normalize("Cien años de soledad"); got != "cien años de soledad" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("got %q", got)
	}
	if got := Normalize("  ¡¡¡...!!!  "); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "Cortázar", "100 años de soledad", "1.00", "10-0 poemas",
		"¿Dónde está el Ñandú?", "El Aleph.", "  a  b  c  ", "2100",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
