package pipeline

import (
	"errors"
	"fmt"

	"ai-web-studio/internal/llm"
)

// Stage names one ordered step of the pipeline.
type Stage string

const (
	StageStructure   Stage = "structure"
	StageColorScheme Stage = "color_scheme"
	StageMarkup      Stage = "markup"
	StageStyle       Stage = "style"
	StageScript      Stage = "script"
)

// Stages is the fixed execution order.
var Stages = []Stage{StageStructure, StageColorScheme, StageMarkup, StageStyle, StageScript}

var (
	ErrStageFailed = errors.New("generation stage failed")
	ErrCancelled   = errors.New("generation cancelled")
)

// StageError attaches the failing stage to its cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrStageFailed, e.Err}
}

// Outcome is the result of one stage: a value or a failure, never both.
type Outcome[T any] struct {
	Value T
	Model string
	Usage llm.Usage
	Err   error
}

func ok[T any](v T, c llm.Completion) Outcome[T] {
	return Outcome[T]{Value: v, Model: c.Model, Usage: c.Usage}
}

func failed[T any](err error) Outcome[T] {
	return Outcome[T]{Err: err}
}
