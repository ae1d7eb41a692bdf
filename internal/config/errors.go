package config

import "fmt"

// ValidationError reports a single invalid configuration value.
type ValidationError struct {
	Component string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %s.%s: %v", e.Component, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(component, field string, err error) *ValidationError {
	return &ValidationError{Component: component, Field: field, Err: err}
}

// LoadError reports a failure to read or parse a configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config: failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
