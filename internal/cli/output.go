package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/slmyyl/xpert-framework/internal/dao"
	"github.com/slmyyl/xpert-framework/internal/restriction"
	"github.com/slmyyl/xpert-framework/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (no row, ambiguous result, delete refused)
	ExitCommandError = 2 // Command error (bad config, unreadable entities, database unreachable, bad filter)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Configuration could not be loaded
	ErrCodeEntities    = "E003" // Entity declarations could not be loaded
	ErrCodeConnection  = "E004" // Database could not be opened
	ErrCodeEntity      = "E005" // Unknown entity name
	ErrCodeRestriction = "E010" // Invalid filter, order or projection
	ErrCodeNotFound    = "E011" // No row for the identifier
	ErrCodeNonUnique   = "E012" // More than one row for unique
	ErrCodeDelete      = "E013" // Delete failed
	ErrCodeIllegal     = "E014" // Operation not allowed in this state
	ErrCodeAuditOff    = "E015" // Audit history requested with auditing disabled
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output, defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command result.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Lines outputs data as JSON, or the prepared lines as text.
func (f *OutputFormatter) Lines(lines []string, data any) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	for _, line := range lines {
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through the formatter and returns it as an ExitError
// with the matching exit code.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		_ = f.Error(ErrCodeGeneric, exitErr.Message, nil)
		return exitErr
	}
	code, exit := classify(err)
	var details any
	if rc := restriction.CodeOf(err); rc != "" {
		details = map[string]string{"restriction": string(rc)}
	}
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// JSON output keeps it on ErrWriter so the envelope stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// classify maps a command error onto an error code and exit code.
func classify(err error) (string, int) {
	var cmdErr *commandError
	switch {
	case errors.As(err, &cmdErr):
		return cmdErr.code, ExitCommandError
	case restriction.IsInvalidRestriction(err):
		return ErrCodeRestriction, ExitCommandError
	case store.IsConnectionError(err):
		return ErrCodeConnection, ExitCommandError
	case dao.IsDeleteError(err):
		return ErrCodeDelete, ExitFailure
	case dao.IsNotFound(err):
		return ErrCodeNotFound, ExitFailure
	case dao.IsNonUniqueResult(err):
		return ErrCodeNonUnique, ExitFailure
	case dao.IsIllegalState(err):
		return ErrCodeIllegal, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}

// commandError tags setup failures with their error code.
type commandError struct {
	code string
	err  error
}

func (e *commandError) Error() string { return e.err.Error() }

func (e *commandError) Unwrap() error { return e.err }

func commandErrorf(code, format string, args ...any) error {
	return &commandError{code: code, err: fmt.Errorf(format, args...)}
}

// formatValue renders one column value for text output.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		if x == "" || strings.ContainsAny(x, " \t\n") {
			return fmt.Sprintf("%q", x)
		}
		return x
	}
	return fmt.Sprint(v)
}
