package logging

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"joao.silva@prestamos.mx", "joa***@prestamos.mx"},
		{"a@b.com", "a***@b.com"},
		{"not-an-email", "***"},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("login:maria@cobros.pe"); got != "login:mar***@cobros.pe" {
		t.Fatalf("unexpected masked key %q", got)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	l, err := New(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Fatal("debug must be disabled at warn level")
	}
	if !l.Core().Enabled(1) {
		t.Fatal("warn must be enabled at warn level")
	}

	l, err = New(Config{Level: "bogus", Development: true})
	if err != nil {
		t.Fatalf("New with bogus level failed: %v", err)
	}
	if !l.Core().Enabled(0) {
		t.Fatal("expected info fallback")
	}
}
