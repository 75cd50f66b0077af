package core

import "fmt"

// PlanningError means question decomposition failed. There is no fallback
// question set; the run terminates.
type PlanningError struct {
	Err error
}

func (e PlanningError) Error() string { return fmt.Sprintf("planning failed: %v", e.Err) }
func (e PlanningError) Unwrap() error { return e.Err }

// SynthesisError means the combination call itself failed. Partial specialist
// failures never produce this; they only lower expected confidence.
type SynthesisError struct {
	Err error
}

func (e SynthesisError) Error() string { return fmt.Sprintf("synthesis failed: %v", e.Err) }
func (e SynthesisError) Unwrap() error { return e.Err }

// ReflectionError means the enhancement call failed. Terminal: the run does
// not fall back to the pre-reflection synthesis output.
type ReflectionError struct {
	Err error
}

func (e ReflectionError) Error() string { return fmt.Sprintf("reflection failed: %v", e.Err) }
func (e ReflectionError) Unwrap() error { return e.Err }
