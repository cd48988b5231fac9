package model

import (
	"fmt"
	"strings"
)

// InvalidArgumentError is a caller-contract violation.
type InvalidArgumentError struct {
	Argument string
	Value    string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Reason)
	}
	return fmt.Sprintf("invalid argument %s=%q: %s", e.Argument, e.Value, e.Reason)
}

// UnsupportedModelError carries the rejected name and every valid one.
type UnsupportedModelError struct {
	Capability Capability
	Name       string
	Available  []string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unknown %s model: %s. available models: [%s]",
		e.Capability, e.Name, strings.Join(e.Available, " "))
}

type InputNotFoundError struct {
	Path string
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input not found: %s", e.Path)
}

// InferenceError wraps a failure of the wrapped model on otherwise valid input.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
