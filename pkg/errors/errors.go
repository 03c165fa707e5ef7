// Package errors provides structured error handling for walletlink.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, suggestions and template variables to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or request rejected by the wallet
	ExitTimeout    = 6 // Operation timed out
)

// WalletError is the structured error type for walletlink.
type WalletError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message, may contain ${var} placeholders
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WalletError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WalletError.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &WalletError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrAuthentication = &WalletError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNotFound = &WalletError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrTimeout = &WalletError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: ExitTimeout,
	}

	// Session controller errors.
	ErrNoActiveWallet = &WalletError{
		Code:       "NO_ACTIVE_WALLET",
		Message:    "no active wallet",
		Suggestion: "Connect a wallet first with 'walletlink connect <wallet>'",
		ExitCode:   ExitInput,
	}

	ErrUnknownInstance = &WalletError{
		Code:     "UNKNOWN_WALLET_INSTANCE",
		Message:  "wallet config not found for given wallet instance, create wallet instances through the factory",
		ExitCode: ExitGeneral,
	}

	ErrUnsupportedWallet = &WalletError{
		Code:     "UNSUPPORTED_WALLET",
		Message:  "wallet ${walletId} is not in the supported wallet set",
		ExitCode: ExitInput,
	}

	ErrConnectInProgress = &WalletError{
		Code:       "CONNECT_IN_PROGRESS",
		Message:    "another connection attempt is already in progress",
		Suggestion: "Wait for the current connection attempt to finish",
		ExitCode:   ExitGeneral,
	}

	ErrAutoConnectTimeout = &WalletError{
		Code:     "AUTO_CONNECT_TIMEOUT",
		Message:  "failed to auto connect to the wallet",
		ExitCode: ExitTimeout,
	}

	ErrPersonalWalletRequired = &WalletError{
		Code:     "PERSONAL_WALLET_REQUIRED",
		Message:  "a connected personal wallet is required to connect ${walletId}",
		ExitCode: ExitInput,
	}

	// Wallet transport errors.
	ErrWalletNotConnected = &WalletError{
		Code:     "WALLET_NOT_CONNECTED",
		Message:  "wallet is not connected",
		ExitCode: ExitGeneral,
	}

	ErrNotAuthorized = &WalletError{
		Code:     "WALLET_NOT_AUTHORIZED",
		Message:  "wallet has not authorized this application",
		ExitCode: ExitAuth,
	}

	ErrUserRejected = &WalletError{
		Code:     "USER_REJECTED",
		Message:  "request rejected by the wallet",
		ExitCode: ExitPermission,
	}

	ErrSwitchChainUnsupported = &WalletError{
		Code:     "SWITCH_CHAIN_NOT_SUPPORTED",
		Message:  "wallet does not support switching chains",
		ExitCode: ExitInput,
	}

	ErrWalletNotInstalled = &WalletError{
		Code:     "WALLET_NOT_INSTALLED",
		Message:  "wallet ${walletId} is not installed or not reachable",
		ExitCode: ExitNotFound,
	}

	ErrNetworkError = &WalletError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrInvalidAddress = &WalletError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidMnemonic = &WalletError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &WalletError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted key",
		ExitCode: ExitAuth,
	}

	// Chain table errors.
	ErrChainNotFound = &WalletError{
		Code:     "CHAIN_NOT_FOUND",
		Message:  "chain ${chain} not found",
		ExitCode: ExitNotFound,
	}

	// Storage errors.
	ErrStorage = &WalletError{
		Code:     "STORAGE_ERROR",
		Message:  "storage operation failed",
		ExitCode: ExitGeneral,
	}

	ErrStorageBackend = &WalletError{
		Code:     "UNKNOWN_STORAGE_BACKEND",
		Message:  "unknown storage backend ${backend}",
		ExitCode: ExitInput,
	}

	// Config errors.
	ErrConfigNotFound = &WalletError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &WalletError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	// Login errors.
	ErrLoginStateMismatch = &WalletError{
		Code:     "LOGIN_STATE_MISMATCH",
		Message:  "state parameter does not match",
		ExitCode: ExitAuth,
	}

	ErrLoginTimeout = &WalletError{
		Code:       "LOGIN_TIMEOUT",
		Message:    "timed out waiting for the login callback",
		Suggestion: "Run 'walletlink login' again and finish the flow in your browser",
		ExitCode:   ExitTimeout,
	}

	ErrNotLoggedIn = &WalletError{
		Code:       "NOT_LOGGED_IN",
		Message:    "no API secret key cached",
		Suggestion: "Run 'walletlink login' first",
		ExitCode:   ExitAuth,
	}
)

// New creates a new WalletError with the given code and message.
func New(code, message string) *WalletError {
	return &WalletError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    fmt.Sprintf("%s: %s", msg, we.Message),
			Details:    we.Details,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel error carrying cause.
func WithCause(sentinel *WalletError, cause error) error {
	cp := *sentinel
	cp.Cause = cause
	return &cp
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    details,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

var templateVar = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Template fills ${name} placeholders in the error message from vars.
// Placeholders without a value are left untouched.
func Template(err error, vars map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if !errors.As(err, &we) {
		return err
	}

	msg := templateVar.ReplaceAllStringFunc(we.Message, func(m string) string {
		name := templateVar.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})

	return &WalletError{
		Code:       we.Code,
		Message:    msg,
		Details:    we.Details,
		Suggestion: we.Suggestion,
		Cause:      we.Cause,
		ExitCode:   we.ExitCode,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var we *WalletError
	if errors.As(err, &we) {
		return we.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
