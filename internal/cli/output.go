// Package cli provides output formatting and shell completion for socialctl.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Printer renders command results in one format.
type Printer struct {
	w        io.Writer
	format   string
	colorize bool
}

// NewPrinter creates a printer for format. Colors are used only on terminals.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case "", FormatText:
		format = FormatText
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: text, json, yaml)", format)
	}
	return &Printer{w: w, format: format, colorize: isTerminal(w)}, nil
}

// Format returns the selected format.
func (p *Printer) Format() string { return p.format }

// Print writes v as JSON or YAML, or calls text for the text format.
func (p *Printer) Print(v any, text func(w io.Writer)) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(p.w)
		return nil
	}
}

// Colorize returns text wrapped in color on terminals.
func (p *Printer) Colorize(text, color string) string {
	if !p.colorize {
		return text
	}
	return color + text + ColorReset
}

// Success prints a success line.
func (p *Printer) Success(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize("✓", ColorGreen), message)
}

// Error prints an error line.
func (p *Printer) Error(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize("✗", ColorRed), message)
}

// Warning prints a warning line.
func (p *Printer) Warning(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Colorize("⚠", ColorYellow), message)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Age formats how long ago t was relative to now.
func Age(now, t time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
