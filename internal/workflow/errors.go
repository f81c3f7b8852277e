package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the user message is blank.
	ErrEmptyInput = errors.New("user input is required")
	// ErrConversationNotFound is returned for an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrStageOutputParse is returned when a completion cannot be decoded
	// into the structured output a stage expects.
	ErrStageOutputParse = errors.New("stage output could not be parsed")
	// ErrUpstreamCompletion is returned when the completion service fails.
	ErrUpstreamCompletion = errors.New("completion service failed")
)

// StageError annotates a failure with the stage that raised it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func parseError(err error) error {
	return fmt.Errorf("%w: %v", ErrStageOutputParse, err)
}

func upstreamError(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstreamCompletion, err)
}
