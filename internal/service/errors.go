// Package service implements the CRM business logic: identities, sessions,
// the working-memory customer repository, the report cache and the workspace
// that wires them to the tenant-scoped data store.
package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("email or password incorrect")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")
	// ErrNotFound is returned when a customer or identity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned when a report generation or refinement is already running.
	ErrBusy = errors.New("report operation already in progress")
	// ErrNoReport is returned when refining or exporting without a report.
	ErrNoReport = errors.New("no report available")
	// ErrGenerationFailed wraps any failure of the external report generator.
	ErrGenerationFailed = errors.New("report generation failed")
	// ErrCustomersUnavailable is returned by customer mutations while the
	// stored customers of the tenant could not be loaded.
	ErrCustomersUnavailable = errors.New("stored customers could not be loaded")
)

// ValidationError lists the invalid fields of a request, keyed by JSON name.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f, e.Errors[f]))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs v on s and converts failures into a *ValidationError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &ValidationError{Errors: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		ve.Errors[fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:]] = message(fe)
	}
	return ve
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	}
	return "is invalid"
}
