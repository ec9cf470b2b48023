// Package errs defines the error categories used across the extractor.
//
// Categories decide two things: what HTTP status the API layer maps an error
// to, and whether the orchestrator treats a failure as something the user can
// act on (bad credentials, deleted file) or as a broken invariant on our side.
package errs

import (
	"errors"
	"fmt"
)

// ParameterError reports a missing or malformed request parameter.
// Never retried, always surfaced to the caller.
type ParameterError struct {
	Param string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %s is missing", e.Param)
}

// MissingParameter builds a ParameterError for the given parameter name.
func MissingParameter(param string) error {
	return &ParameterError{Param: param}
}

// ConfigurationError reports a problem with the stored configuration:
// a referenced account does not exist, a duplicate is being created, or the
// sys bucket is unusable.
type ConfigurationError struct {
	Msg   string
	Cause error
}

func (e *ConfigurationError) Error() string {
	return "wrong configuration: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Configuration builds a ConfigurationError with a formatted message.
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// UserError reports a remote-side rejection attributable to the account,
// its credentials, or its data. Context identifies the account and sheet so
// the caller can act without reading logs.
type UserError struct {
	Msg   string
	Cause error

	// Optional context attached at the failure site.
	AccountID string
	Sheet     string
	Response  string // bounded excerpt of the remote response body
}

func (e *UserError) Error() string { return e.Msg }

func (e *UserError) Unwrap() error { return e.Cause }

// User builds a UserError with a formatted message.
func User(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// ApplicationError reports a violated invariant about a collaborator's
// behavior, e.g. a file resource without export links. No user action fixes
// it; always fatal.
type ApplicationError struct {
	Msg   string
	Cause error
}

func (e *ApplicationError) Error() string { return e.Msg }

func (e *ApplicationError) Unwrap() error { return e.Cause }

// Application builds an ApplicationError with a formatted message.
func Application(format string, args ...any) error {
	return &ApplicationError{Msg: fmt.Sprintf(format, args...)}
}

// ResourceError reports a failure to create or write an ephemeral resource
// (temp CSV files). Always fatal; cleanup of partial resources is still
// attempted by the failing component.
type ResourceError struct {
	Msg   string
	Cause error
}

func (e *ResourceError) Error() string { return e.Msg }

func (e *ResourceError) Unwrap() error { return e.Cause }

// Resource wraps err as a ResourceError.
func Resource(msg string, err error) error {
	return &ResourceError{Msg: msg, Cause: err}
}

// IsParameter reports whether err is a ParameterError.
func IsParameter(err error) bool {
	var pe *ParameterError
	return errors.As(err, &pe)
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsUser reports whether err is a UserError.
func IsUser(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// IsApplication reports whether err is an ApplicationError.
func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}
