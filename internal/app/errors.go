package app

import "errors"

var (
	// ErrMessageRequired indicates a blank chat message.
	ErrMessageRequired = errors.New("message is required")
	ErrNoFiles         = errors.New("no files uploaded")
	ErrTooManyFiles    = errors.New("too many files")
	ErrFileTooLarge    = errors.New("file too large")
	// ErrGeneration matches answer generator failures; no turn is recorded.
	ErrGeneration = errors.New("answer generation failed")
)

// generationError carries the generator's message unchanged and matches
// ErrGeneration.
type generationError struct {
	err error
}

func (e *generationError) Error() string { return e.err.Error() }

func (e *generationError) Unwrap() []error { return []error{ErrGeneration, e.err} }
