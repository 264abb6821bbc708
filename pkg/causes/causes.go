// Package causes provides a small symbolic error taxonomy. Every failure produced by
// cachedict packages is built from a Cause - a named, categorized error sentinel with
// a message template. Callers match on the sentinel with errors.Is, or on the whole
// category with IsCategory, without parsing message text.
package causes

import (
	"errors"
	"fmt"
)

// failure categories, shared across packages
const (
	SchemaValidation = "schema validation"
	NotFound         = "not found"
	TypeMismatch     = "type mismatch"
	ReadOnly         = "read only"
	ConnectionClosed = "connection closed"
	Configuration    = "configuration"
)

// Cause is a symbolic failure cause with a message template. Causes are declared as
// package-level vars by the package that raises them and act as comparable sentinels,
// i.e. errors.Is(err, pkg.ErrSomething) matches any error made with Errorf.
type Cause struct {
	category string
	name     string
	format   string
}

// New registers a cause with the given category, symbolic name and fmt-style message template.
func New(category, name, format string) *Cause {
	return &Cause{category: category, name: name, format: format}
}

// Error implements the error interface for the bare sentinel.
func (c *Cause) Error() string { return c.category + ": " + c.name }

// Category returns the failure category of the cause.
func (c *Cause) Category() string { return c.category }

// Name returns the symbolic name of the cause.
func (c *Cause) Name() string { return c.name }

// Errorf makes an error for the cause with the template filled in.
// The result unwraps to the cause itself.
func (c *Cause) Errorf(args ...any) error {
	return &Error{cause: c, msg: fmt.Sprintf(c.format, args...)}
}

// Error is a formatted failure produced from a Cause.
type Error struct {
	cause *Cause
	msg   string
}

// Error returns the formatted message.
func (e *Error) Error() string { return e.msg }

// Unwrap exposes the cause sentinel to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Cause returns the symbolic cause of the error.
func (e *Error) Cause() *Cause { return e.cause }

// IsCategory reports if any error in the wrap chain, including multi-error containers,
// was produced from a cause of the given category.
func IsCategory(err error, category string) bool {
	if err == nil {
		return false
	}
	if c, ok := err.(*Cause); ok {
		return c.category == category
	}
	if e, ok := err.(*Error); ok {
		return e.cause.category == category
	}
	// containers checked before the plain wrap chain, hashicorp's chain unwrapping
	// steps past the head error
	if x, ok := err.(interface{ WrappedErrors() []error }); ok { // hashicorp multierror
		for _, sub := range x.WrappedErrors() {
			if IsCategory(sub, category) {
				return true
			}
		}
		return false
	}
	if x, ok := err.(interface{ Unwrap() []error }); ok {
		for _, sub := range x.Unwrap() {
			if IsCategory(sub, category) {
				return true
			}
		}
		return false
	}
	if x, ok := err.(interface{ Unwrap() error }); ok {
		return IsCategory(x.Unwrap(), category)
	}
	return false
}

// Find returns the first Cause in the wrap chain, or nil if the error carries none.
func Find(err error) *Cause {
	var e *Error
	if errors.As(err, &e) {
		return e.cause
	}
	var c *Cause
	if errors.As(err, &c) {
		return c
	}
	return nil
}
