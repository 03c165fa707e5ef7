package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	if format == FormatJSON {
		return formatErrorJSON(w, err)
	}
	return formatErrorText(w, err)
}

// formatErrorJSON outputs error in JSON format.
func formatErrorJSON(w io.Writer, err error) error {
	detail := ErrorDetail{
		Code:     walleterr.ErrGeneral.Code,
		Message:  err.Error(),
		ExitCode: walleterr.ExitGeneral,
	}

	var we *walleterr.WalletError
	if errors.As(err, &we) {
		detail = ErrorDetail{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: we.Suggestion,
			ExitCode:   we.ExitCode,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ErrorOutput{Error: detail})
}

// formatErrorText outputs error in text format. Details are listed in key
// order.
func formatErrorText(w io.Writer, err error) error {
	var sb strings.Builder

	var we *walleterr.WalletError
	if !errors.As(err, &we) {
		sb.WriteString(fmt.Sprintf("Error: %s\n", err.Error()))
		_, writeErr := w.Write([]byte(sb.String()))
		return writeErr
	}

	sb.WriteString(fmt.Sprintf("Error: %s\n", we.Message))
	if len(we.Details) > 0 {
		keys := make([]string, 0, len(we.Details))
		for k := range we.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, we.Details[k]))
		}
	}
	if we.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", we.Suggestion))
	}

	_, writeErr := w.Write([]byte(sb.String()))
	return writeErr
}
