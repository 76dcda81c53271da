package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name    string
		noColor string
		force   string
		cli     string
		want    bool
	}{
		{name: "buffer is not a terminal", want: false},
		{name: "force", force: "1", want: true},
		{name: "no color wins over force", noColor: "1", force: "1", want: false},
		{name: "clicolor off", cli: "0", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("CLICOLOR_FORCE", tt.force)
			t.Setenv("CLICOLOR", tt.cli)
			if got := ShouldUseColor(&bytes.Buffer{}); got != tt.want {
				t.Fatalf("ShouldUseColor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStyler_Plain(t *testing.T) {
	var s Styler
	if s.Enabled() {
		t.Fatal("zero Styler should not color")
	}
	for _, got := range []string{s.Accent("x"), s.Keyword("x"), s.Command("x"), s.Muted("x"), s.Warn("x")} {
		if got != "x" {
			t.Fatalf("plain render = %q", got)
		}
	}
	if got := s.Disabled("dog"); got != "dog (disabled)" {
		t.Fatalf("Disabled = %q", got)
	}
}

func TestStyler_Color(t *testing.T) {
	s := ForceColor()
	if got := s.Accent("animal"); got != "\x1b[38;5;74manimal\x1b[0m" {
		t.Fatalf("Accent = %q", got)
	}
	got := s.Disabled("dog")
	if !strings.HasPrefix(got, "\x1b[9;") || !strings.Contains(got, "dog") || strings.Contains(got, "(disabled)") {
		t.Fatalf("Disabled = %q", got)
	}
}

func TestNewStyler_Buffer(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	if NewStyler(&bytes.Buffer{}).Enabled() {
		t.Fatal("a buffer should get a plain styler")
	}
}
