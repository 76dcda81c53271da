package ui

import (
	"fmt"
	"io"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = 74  // blue
	colorKeyword = 114 // green
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorWarn    = 214 // orange
)

// Styler renders text for one output stream. The zero value renders plain
// text.
type Styler struct {
	color bool
}

// NewStyler returns a Styler that colors only when w is a color-capable
// terminal (see ShouldUseColor).
func NewStyler(w io.Writer) Styler {
	return Styler{color: ShouldUseColor(w)}
}

// ForceColor returns a Styler that always emits ANSI sequences.
func ForceColor() Styler {
	return Styler{color: true}
}

// Enabled reports whether the styler emits color.
func (s Styler) Enabled() bool { return s.color }

func (s Styler) paint(code int, text string) string {
	if !s.color {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Accent renders section headers and group names.
func (s Styler) Accent(text string) string { return s.paint(colorAccent, text) }

// Keyword renders an enabled keyword.
func (s Styler) Keyword(text string) string { return s.paint(colorKeyword, text) }

// Command renders a command name in help output.
func (s Styler) Command(text string) string { return s.paint(colorCmd, text) }

// Muted renders secondary details such as ids and defaults.
func (s Styler) Muted(text string) string { return s.paint(colorMuted, text) }

// Warn renders conflict summaries.
func (s Styler) Warn(text string) string { return s.paint(colorWarn, text) }

// Disabled renders a disabled group or keyword: muted and struck through.
// Without color the text is suffixed so the state is still visible.
func (s Styler) Disabled(text string) string {
	if !s.color {
		return text + " (disabled)"
	}
	return fmt.Sprintf("\x1b[9;38;5;%dm%s\x1b[0m", colorMuted, text)
}
