package bots

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidHandler is returned when an alias or handler identifier does
	// not resolve to a registered definition.
	ErrInvalidHandler = errors.New("invalid handler")
)

// BotError marks a recoverable request-level failure, such as an
// unresolvable handler or an inconsistent post-override state.
type BotError struct {
	msg string
	err error
}

// NewBotError creates a BotError wrapping an optional cause.
func NewBotError(msg string, cause error) *BotError {
	return &BotError{msg: msg, err: cause}
}

func (e *BotError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *BotError) Unwrap() error { return e.err }

// ConfigurationError reports an invalid handler registration. It is fatal at
// bootstrap and never surfaces at request time.
type ConfigurationError struct {
	Alias  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("bot handler registration: %s", e.Reason)
	}
	return fmt.Sprintf("bot handler %q registration: %s", e.Alias, e.Reason)
}

// ValidationError carries field-indexed validation messages for a failed
// action resolution. All failures for a single resolve call are collected
// before the error is returned.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// Add appends a message for the given field.
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

// Merge copies all messages from other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		e.Fields[field] = append(e.Fields[field], messages...)
	}
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Fields[field], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
