// Package output renders walletlink command results as text or JSON.
package output

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter chooses how command results are rendered.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a formatter for format writing to w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w}
}

// Format returns the current output format.
func (f *Formatter) Format() Format {
	if f == nil {
		return FormatText
	}
	return f.format
}

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// IsJSON reports whether results are rendered as JSON. A nil formatter
// renders text.
func (f *Formatter) IsJSON() bool {
	return f != nil && f.format == FormatJSON
}

// Emit writes v to w as JSON, or calls text to render it for humans.
func (f *Formatter) Emit(w io.Writer, v any, text func(io.Writer) error) error {
	if f.IsJSON() || text == nil {
		return WriteJSON(w, v)
	}
	return text(w)
}

// WriteJSON encodes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DetectFormat resolves FormatAuto: text on a terminal, JSON otherwise.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() fits in int
		return FormatText
	}
	return FormatJSON
}

// ParseFormat parses a format name; anything unknown is FormatAuto.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON
	case FormatText:
		return FormatText
	default:
		return FormatAuto
	}
}
